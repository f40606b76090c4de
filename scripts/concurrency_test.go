//go:build ignore
// +build ignore

// Package main is a manual concurrency stress test for the lending API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <institute_id> <book_id> <student1_id> [student2_id ...]
//
// Or with environment variables:
//
//	INSTITUTE_ID=<uuid> BOOK_ID=<uuid> STUDENT_IDS=<uuid1>,<uuid2>,... go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Reads the book's copies_available from GET /inventory.
//  2. Fires one goroutine per student, all issuing the same book at once.
//  3. Checks that exactly min(students, available) issues succeeded, that
//     every other request was turned away with no_copies_available, and that
//     the shelf count dropped by the number of loans.
//
// Prerequisites:
//   - Server running (lms serve).
//   - The institute stocks the book and the students are on its roster.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	defaultServerAddr = "http://localhost:8080"
	tenantHeader      = "X-Institute-ID"
)

type issueResult struct {
	StudentID  string
	StatusCode int
	Code       string
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	instituteID := os.Getenv("INSTITUTE_ID")
	bookID := os.Getenv("BOOK_ID")
	var studentIDs []string
	if env := os.Getenv("STUDENT_IDS"); env != "" {
		studentIDs = strings.Split(env, ",")
	}

	args := os.Args[1:]
	if len(args) >= 2 {
		instituteID, bookID = args[0], args[1]
	}
	if len(args) >= 3 {
		studentIDs = args[2:]
	}

	if instituteID == "" || bookID == "" {
		log.Fatal("Usage: INSTITUTE_ID=<uuid> BOOK_ID=<uuid> STUDENT_IDS=<s1,s2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <institute_id> <book_id> <student1_id> [student2_id ...]")
	}
	if len(studentIDs) == 0 {
		log.Fatal("At least one student ID must be provided via STUDENT_IDS env or positional args")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	before, err := copiesAvailable(client, serverAddr, instituteID, bookID)
	if err != nil {
		log.Fatalf("read inventory: %v", err)
	}

	fmt.Printf("=== Lending Concurrency Test ===\n")
	fmt.Printf("Server    : %s\n", serverAddr)
	fmt.Printf("Institute : %s\n", instituteID)
	fmt.Printf("Book      : %s (%d on the shelf)\n", bookID, before)
	fmt.Printf("Students  : %d\n\n", len(studentIDs))

	results := make([]issueResult, len(studentIDs))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, sid := range studentIDs {
		wg.Add(1)
		go func(idx int, studentID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptIssue(client, serverAddr, instituteID, bookID, strings.TrimSpace(studentID))
		}(i, sid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var issued, rejected, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] student=%-38s err=%v\n", r.StudentID, r.Err)
		case r.StatusCode == http.StatusCreated:
			issued++
			fmt.Printf("  [LOAN] student=%-38s status=%d\n", r.StudentID, r.StatusCode)
		case r.Code == "no_copies_available":
			rejected++
			fmt.Printf("  [NONE] student=%-38s status=%d\n", r.StudentID, r.StatusCode)
		default:
			failures++
			fmt.Printf("  [FAIL] student=%-38s status=%d code=%s\n", r.StudentID, r.StatusCode, r.Code)
		}
	}

	after, err := copiesAvailable(client, serverAddr, instituteID, bookID)
	if err != nil {
		log.Fatalf("read inventory: %v", err)
	}

	want := before
	if len(studentIDs) < want {
		want = len(studentIDs)
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Issued      : %d (expected %d)\n", issued, want)
	fmt.Printf("Unavailable : %d\n", rejected)
	fmt.Printf("Failures    : %d\n", failures)
	fmt.Printf("Shelf       : %d -> %d\n\n", before, after)

	ok := failures == 0 && issued == want && after == before-issued && after >= 0
	if !ok {
		fmt.Println("[FAIL] inventory and loans disagree or requests failed; check server logs.")
		os.Exit(1)
	}
	fmt.Println("[OK] every issued loan consumed exactly one copy.")
}

func attemptIssue(client *http.Client, serverAddr, instituteID, bookID, studentID string) issueResult {
	body, _ := json.Marshal(map[string]string{"book_id": bookID, "student_id": studentID})
	req, err := http.NewRequest(http.MethodPost, serverAddr+"/loans", bytes.NewReader(body))
	if err != nil {
		return issueResult{StudentID: studentID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tenantHeader, instituteID)

	resp, err := client.Do(req)
	if err != nil {
		return issueResult{StudentID: studentID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return issueResult{StudentID: studentID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	code, _ := parsed["code"].(string)
	return issueResult{StudentID: studentID, StatusCode: resp.StatusCode, Code: code}
}

func copiesAvailable(client *http.Client, serverAddr, instituteID, bookID string) (int, error) {
	req, err := http.NewRequest(http.MethodGet, serverAddr+"/inventory", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set(tenantHeader, instituteID)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var rows []struct {
		BookID          string `json:"book_id"`
		CopiesAvailable int    `json:"copies_available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return 0, err
	}
	for _, row := range rows {
		if row.BookID == bookID {
			return row.CopiesAvailable, nil
		}
	}
	return 0, nil
}
