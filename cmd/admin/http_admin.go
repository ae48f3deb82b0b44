package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func apiClient(baseURL, token string) func(method, path string, body any) {
	cl := &http.Client{Timeout: 15 * time.Second}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if token == "" {
		token = strings.TrimSpace(os.Getenv("OHI_ADMIN_TOKEN"))
	}
	return func(method, path string, body any) {
		var rd io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				fmt.Fprintln(os.Stderr, "encode:", err)
				os.Exit(1)
			}
			rd = bytes.NewReader(b)
		}
		req, err := http.NewRequest(method, base+path, rd)
		if err != nil {
			fmt.Fprintln(os.Stderr, "request:", err)
			os.Exit(1)
		}
		if rd != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := cl.Do(req)
		if err != nil {
			fmt.Fprintln(os.Stderr, "request:", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		fmt.Println(strings.TrimSpace(string(b)))
		if resp.StatusCode/100 != 2 {
			os.Exit(1)
		}
	}
}

func usersCmd(args []string) {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	token := fs.String("token", "", "bearer token (default: $OHI_ADMIN_TOKEN)")
	id := fs.String("id", "", "user id (update/delete)")
	username := fs.String("username", "", "username (create)")
	email := fs.String("email", "", "email (create/update)")
	role := fs.String("role", "", "role (create/update)")
	active := fs.String("active", "", "true|false (update)")
	_ = fs.Parse(args)

	do := apiClient(*baseURL, *token)
	action := "list"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}
	switch action {
	case "list":
		do(http.MethodGet, "/api/v1/auth/users", nil)
	case "create":
		if *username == "" {
			fmt.Fprintln(os.Stderr, "missing -username")
			os.Exit(2)
		}
		do(http.MethodPost, "/api/v1/auth/users", map[string]string{
			"username": *username, "email": *email, "role": *role,
		})
	case "update":
		if *id == "" {
			fmt.Fprintln(os.Stderr, "missing -id")
			os.Exit(2)
		}
		body := map[string]any{}
		if *email != "" {
			body["email"] = *email
		}
		if *role != "" {
			body["role"] = *role
		}
		if *active != "" {
			body["active"] = *active == "true"
		}
		do(http.MethodPut, "/api/v1/auth/users/"+*id, body)
	case "delete":
		if *id == "" {
			fmt.Fprintln(os.Stderr, "missing -id")
			os.Exit(2)
		}
		do(http.MethodDelete, "/api/v1/auth/users/"+*id, nil)
	default:
		fmt.Fprintln(os.Stderr, "unknown users action:", action)
		os.Exit(2)
	}
}

func tracesCmd(args []string) {
	fs := flag.NewFlagSet("traces", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	token := fs.String("token", "", "bearer token (default: $OHI_ADMIN_TOKEN)")
	provider := fs.String("provider", "", "provider filter")
	operation := fs.String("operation", "", "operation filter")
	country := fs.String("country", "", "country iso filter")
	success := fs.String("success", "", "true|false filter")
	limit := fs.Int("limit", 0, "result limit")
	days := fs.Int("days", 7, "stats window in days")
	_ = fs.Parse(args)

	do := apiClient(*baseURL, *token)
	action := "list"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}
	switch action {
	case "list":
		q := url.Values{}
		set := func(k, v string) {
			if v != "" {
				q.Set(k, v)
			}
		}
		set("provider", *provider)
		set("operation", *operation)
		set("country_iso", *country)
		set("success", *success)
		if *limit > 0 {
			q.Set("limit", fmt.Sprint(*limit))
		}
		path := "/api/v1/ai-config/traces"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		do(http.MethodGet, path, nil)
	case "stats":
		do(http.MethodGet, fmt.Sprintf("/api/v1/ai-config/traces/stats?days=%d", *days), nil)
	default:
		fmt.Fprintln(os.Stderr, "unknown traces action:", action)
		os.Exit(2)
	}
}

func pipelineCmd(args []string) {
	fs := flag.NewFlagSet("pipeline", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	token := fs.String("token", "", "bearer token (default: $OHI_ADMIN_TOKEN)")
	force := fs.Bool("force", false, "force_regenerate (batch start)")
	retryFailed := fs.Bool("retry_failed", false, "retry failed countries (batch start)")
	delay := fs.Float64("delay", 0, "delay_between in seconds (batch start)")
	_ = fs.Parse(args)

	do := apiClient(*baseURL, *token)
	action := "status"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}
	switch action {
	case "etl":
		do(http.MethodPost, "/api/v1/etl/run", nil)
	case "etl-status":
		do(http.MethodGet, "/api/v1/etl/status", nil)
	case "fill":
		do(http.MethodPost, "/api/v1/etl/fill-database", nil)
	case "fill-status", "status":
		do(http.MethodGet, "/api/v1/etl/fill-status", nil)
	case "batch":
		do(http.MethodPost, "/api/v1/insight-batch/generate-all", map[string]any{
			"force_regenerate": *force,
			"retry_failed":     *retryFailed,
			"delay_between":    *delay,
		})
	case "batch-status":
		do(http.MethodGet, "/api/v1/insight-batch/generate-status", nil)
	case "batch-stop":
		do(http.MethodPost, "/api/v1/insight-batch/generate-stop", nil)
	case "batch-reset":
		do(http.MethodPost, "/api/v1/insight-batch/generate-reset", nil)
	default:
		fmt.Fprintln(os.Stderr, "unknown pipeline action:", action)
		os.Exit(2)
	}
}

func sessionsCmd(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(strings.TrimRight(*baseURL, "/") + "/admin/v1/sessions")
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	session := fs.String("session", "", "session id (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*session) == "" {
		fmt.Fprintln(os.Stderr, "missing -session")
		os.Exit(2)
	}
	u := strings.TrimRight(*baseURL, "/") + "/admin/v1/snapshot?session=" + url.QueryEscape(*session)
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
