package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Fires concurrent submissions at a running server and polls each accepted
// trade number to a terminal state. Exercises the dominant rejection path
// (sold out) under contention.

type submitRequest struct {
	MemberID   string       `json:"member_id"`
	OrderType  string       `json:"order_type"`
	Items      []submitItem `json:"items"`
	ActivityID string       `json:"activity_id,omitempty"`
	Address    *address     `json:"address,omitempty"`
}

type submitItem struct {
	SkuID    string `json:"sku_id"`
	Quantity int    `json:"quantity"`
}

type address struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Detail string `json:"detail"`
}

type submitResponse struct {
	TradeNo string `json:"trade_no"`
	Status  string `json:"status"`
}

type statusResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base url")
	orderType := flag.String("type", "seckill", "order type to submit")
	activityID := flag.String("activity", "session-1", "activity/session id")
	skuID := flag.String("sku", "sku-1", "sku to order")
	requests := flag.Int("n", 50, "number of concurrent submitters")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	var accepted, rejected atomic.Int32
	tradeNos := make(chan string, *requests)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func(member int) {
			defer wg.Done()
			req := submitRequest{
				MemberID:   fmt.Sprintf("member-%d", member),
				OrderType:  *orderType,
				Items:      []submitItem{{SkuID: *skuID, Quantity: 1}},
				ActivityID: *activityID,
				Address:    &address{Name: "loadtest", Phone: "13800000000", Detail: "1 Test St"},
			}
			body, _ := json.Marshal(req)

			resp, err := client.Post(*baseURL+"/api/v1/orders", "application/json", bytes.NewReader(body))
			if err != nil {
				log.Printf("submit failed: %v", err)
				rejected.Add(1)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusAccepted {
				rejected.Add(1)
				return
			}
			var out submitResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				log.Printf("decode submit response: %v", err)
				rejected.Add(1)
				return
			}
			accepted.Add(1)
			tradeNos <- out.TradeNo
		}(i)
	}
	wg.Wait()
	close(tradeNos)
	submitElapsed := time.Since(start)

	var created, failed int
	for tradeNo := range tradeNos {
		switch pollTerminal(client, *baseURL, tradeNo) {
		case "created":
			created++
		case "failed":
			failed++
		}
	}

	fmt.Println("========== LOAD TEST RESULTS ==========")
	fmt.Printf("Requests:        %d\n", *requests)
	fmt.Printf("Accepted:        %d\n", accepted.Load())
	fmt.Printf("Rejected:        %d\n", rejected.Load())
	fmt.Printf("Created:         %d\n", created)
	fmt.Printf("Failed:          %d\n", failed)
	fmt.Printf("Submit duration: %v\n", submitElapsed)
	fmt.Println("=======================================")
}

func pollTerminal(client *http.Client, baseURL, tradeNo string) string {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/api/v1/orders/" + tradeNo)
		if err != nil {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		var out statusResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err == nil && (out.Status == "created" || out.Status == "failed") {
			return out.Status
		}
		time.Sleep(200 * time.Millisecond)
	}
	return "timeout"
}
