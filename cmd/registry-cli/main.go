package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/openrights/registry/internal/ledger"
	"github.com/openrights/registry/internal/store"
	"github.com/openrights/registry/internal/store/pgstore"
	"github.com/openrights/registry/internal/store/sqlstore"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "company":
		return handleCompany(args[2:], stdout, stderr)
	case "snapshot":
		return handleSnapshot(args[2:], stdout, stderr)
	case "ledger":
		return handleLedger(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleCompany(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "register":
		return handleCompanyRegister(args[1:], stdout, stderr)
	case "revoke":
		return handleCompanyRevoke(args[1:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleCompanyRegister(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("company register", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("REGISTRY_ADDR", defaultAddr), "registry API address")
	name := fs.String("name", "", "company name")
	contact := fs.String("contact", "", "contact email")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if *name == "" {
		fmt.Fprintln(stderr, "company register requires --name")
		fs.Usage()
		return 2
	}

	payload := map[string]string{"name": *name, "contact_email": *contact}
	respBody, status, err := httpPost(http.DefaultClient, *addr+"/v1/company/register", payload)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusCreated {
		fmt.Fprintf(stderr, "register failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	var grant struct {
		CompanyID string `json:"company_id"`
		APIKey    string `json:"api_key"`
	}
	if err := json.Unmarshal(respBody, &grant); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	fmt.Fprintf(stdout, "company_id=%s api_key=%s\n", grant.CompanyID, grant.APIKey)
	fmt.Fprintln(stdout, "store the api key now; it is not recoverable later")
	return 0
}

func handleCompanyRevoke(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("company revoke", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("REGISTRY_ADDR", defaultAddr), "registry API address")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "company revoke requires <company_id>")
		fs.Usage()
		return 2
	}
	companyID := fs.Arg(0)

	respBody, status, err := httpPost(http.DefaultClient, *addr+"/v1/company/"+companyID+"/revoke", nil)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "revoke failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}
	fmt.Fprintf(stdout, "revoked company_id=%s\n", companyID)
	return 0
}

func handleSnapshot(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("REGISTRY_ADDR", defaultAddr), "registry API address")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	respBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/transparency/global")
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "snapshot failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var snap struct {
		TotalUsers     int64   `json:"total_users"`
		TotalCompanies int64   `json:"total_companies"`
		TotalLookups   int64   `json:"total_lookups"`
		BlockedLookups int64   `json:"blocked_lookups"`
		ProtectionRate float64 `json:"protection_rate"`
	}
	if err := json.Unmarshal(respBody, &snap); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	fmt.Fprintf(stdout, "users=%d companies=%d lookups=%d blocked=%d protection_rate=%.4f\n",
		snap.TotalUsers, snap.TotalCompanies, snap.TotalLookups, snap.BlockedLookups, snap.ProtectionRate)
	return 0
}

func handleLedger(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "verify" {
		usage(stderr)
		return 2
	}
	fs := flag.NewFlagSet("ledger verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	driver := fs.String("driver", "sqlite", "db driver (sqlite or postgres)")
	dsn := fs.String("dsn", "", "database DSN")
	if err := fs.Parse(args[1:]); err != nil {
		fs.Usage()
		return 2
	}
	if *dsn == "" {
		fmt.Fprintln(stderr, "ledger verify requires --dsn")
		fs.Usage()
		return 2
	}

	st, closeStore, err := openVerifyStore(*driver, *dsn)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer closeStore()

	// Chain verification recomputes entry hashes only; fingerprints are
	// already part of the stored entries, so the key is irrelevant here.
	fp, err := ledger.NewFingerprinter([]byte("verify"))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	led, err := ledger.New(st, fp, 0)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	checked, err := led.Verify()
	if err != nil {
		fmt.Fprintf(stderr, "ledger verify failed after %d entries: %v\n", checked, err)
		return 1
	}
	fmt.Fprintf(stdout, "ok entries=%d\n", checked)
	return 0
}

func openVerifyStore(driver, dsn string) (store.Store, func(), error) {
	switch driver {
	case "sqlite":
		st, err := sqlstore.OpenSQLite(dsn)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "postgres":
		st, err := pgstore.OpenPostgres(dsn)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q", driver)
	}
}

func httpGet(client *http.Client, url string) ([]byte, int, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func httpPost(client *http.Client, url string, payload any) ([]byte, int, error) {
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			return nil, 0, err
		}
	}
	resp, err := client.Post(url, "application/json", &buf)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Privacy Rights Registry CLI

Usage:
  registry company register --name NAME [--contact EMAIL] [--addr URL]
  registry company revoke <company_id> [--addr URL]
  registry snapshot [--addr URL] [--json]
  registry ledger verify --dsn DSN [--driver sqlite|postgres]
`)
}
