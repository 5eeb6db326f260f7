package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: guardctl [flags] <command> [args]

commands:
  list                       list snapshots
  create [description]       create a manual snapshot
  golden <id>                mark snapshot as golden
  restore <id> [detail]      restore a snapshot
  restore-golden [detail]    restore the golden snapshot
  report <type> <severity> [description]
                             report a runtime problem
  verify                     run verification now
  runs                       list verification runs
  corrections                list correction attempts
  restores                   list restore records
  audit                      list audit entries
  stats <name>               retry stats for an operation name

flags:
`)
	flag.PrintDefaults()
}

func main() {
	defaultServer := os.Getenv("ROLLGUARD_ADDR")
	if defaultServer == "" {
		defaultServer = "http://127.0.0.1:8080"
	}
	server := flag.String("server", defaultServer, "supervisor base URL (env ROLLGUARD_ADDR)")
	authToken := flag.String("token", os.Getenv("ROLLGUARD_TOKEN"), "auth token (env ROLLGUARD_TOKEN)")
	caFile := flag.String("ca", os.Getenv("ROLLGUARD_CA"), "CA file for supervisor TLS (optional)")
	certFile := flag.String("cert", "", "client certificate for mTLS (optional)")
	keyFile := flag.String("key", "", "client key for mTLS (optional)")
	insecure := flag.Bool("insecure", false, "skip TLS verify (not recommended)")
	requestedBy := flag.String("as", "operator", "identity recorded on mutating operations")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	client, err := buildHTTPClient(*caFile, *certFile, *keyFile, *insecure)
	if err != nil {
		log.Fatalf("http client build failed: %v", err)
	}
	c := &cli{client: client, base: strings.TrimRight(*server, "/"), token: *authToken, as: *requestedBy}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "list":
		c.get("/api/v1/snapshots?limit=20")
	case "create":
		desc := strings.Join(args, " ")
		c.post("/api/v1/snapshots", map[string]interface{}{
			"category": "manual", "description": desc, "requestedBy": c.as,
		})
	case "golden":
		c.post("/api/v1/snapshots/golden", map[string]interface{}{
			"id": argID(args), "requestedBy": c.as,
		})
	case "restore":
		id := argID(args)
		detail := strings.Join(rest(args), " ")
		c.post("/api/v1/snapshots/restore", map[string]interface{}{
			"id": id, "detail": detail, "requestedBy": c.as,
		})
	case "restore-golden":
		c.post("/api/v1/snapshots/golden/restore", map[string]interface{}{
			"detail": strings.Join(args, " "), "requestedBy": c.as,
		})
	case "report":
		if len(args) < 2 {
			log.Fatal("report requires <type> <severity>")
		}
		desc := strings.Join(args[2:], " ")
		c.post("/api/v1/problems", map[string]interface{}{
			"type": args[0], "severity": args[1], "description": desc,
		})
	case "verify":
		c.post("/api/v1/verify/run", map[string]interface{}{})
	case "runs":
		c.get("/api/v1/runs?limit=20")
	case "corrections":
		c.get("/api/v1/corrections?limit=20")
	case "restores":
		c.get("/api/v1/restores?limit=20")
	case "audit":
		c.get("/api/v1/audit?limit=50")
	case "stats":
		if len(args) < 1 {
			log.Fatal("stats requires <name>")
		}
		c.get("/api/v1/retry/stats?name=" + args[0])
	default:
		usage()
		os.Exit(2)
	}
}

type cli struct {
	client *http.Client
	base   string
	token  string
	as     string
}

func (c *cli) get(path string) {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	c.do(req)
}

func (c *cli) post(path string, payload interface{}) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.do(req)
}

func (c *cli) do(req *http.Request) {
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		log.Fatalf("supervisor returned %s body=%s", resp.Status, strings.TrimSpace(string(data)))
	}
	// Pretty-print when the body is JSON, raw otherwise.
	var buf bytes.Buffer
	if json.Indent(&buf, data, "", "  ") == nil {
		fmt.Println(buf.String())
	} else {
		fmt.Println(strings.TrimSpace(string(data)))
	}
}

func argID(args []string) uint {
	if len(args) < 1 {
		log.Fatal("snapshot id required")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || id == 0 {
		log.Fatalf("invalid snapshot id %q", args[0])
	}
	return uint(id)
}

func rest(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}

func buildHTTPClient(caFile, certFile, keyFile string, insecure bool) (*http.Client, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: insecure} //nolint:gosec
	if caFile != "" {
		caCertPool := x509.NewCertPool()
		caData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		caCertPool.AppendCertsFromPEM(caData)
		tlsConfig.RootCAs = caCertPool
	}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return &http.Client{
		Timeout:   10 * time.Minute, // restores and verification runs are slow
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}, nil
}
