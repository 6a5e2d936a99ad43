package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Hammers the metered weather endpoint to observe cache hit rates and
// rate-limit behavior under concurrency. Expects a valid API key issued
// through POST /api/apikey.
func main() {
	baseURL := flag.String("url", "http://localhost:8080/api", "gateway base URL")
	apiKey := flag.String("key", "", "API key to authenticate with")
	city := flag.String("city", "London", "city to query")
	numRequests := flag.Int("n", 1000, "total requests")
	concurrentWorkers := flag.Int("c", 50, "concurrent workers")
	flag.Parse()

	if *apiKey == "" {
		log.Fatal("-key is required")
	}

	var successCount int64
	var limitedCount int64
	var errorCount int64
	var wg sync.WaitGroup

	startTime := time.Now()

	jobs := make(chan int, *numRequests)
	results := make(chan int, *numRequests)

	// start workers
	for w := 0; w < *concurrentWorkers; w++ {
		wg.Add(1)
		go worker(w, jobs, results, *baseURL, *apiKey, *city, &wg)
	}

	// send jobs
	for j := 0; j < *numRequests; j++ {
		jobs <- j
	}
	close(jobs)

	wg.Wait()
	close(results)

	for status := range results {
		switch {
		case status >= 200 && status < 300:
			atomic.AddInt64(&successCount, 1)
		case status == http.StatusTooManyRequests:
			atomic.AddInt64(&limitedCount, 1)
		default:
			atomic.AddInt64(&errorCount, 1)
		}
	}

	duration := time.Since(startTime)
	requestsPerSecond := float64(*numRequests) / duration.Seconds()

	fmt.Println("Load Test Results:")
	fmt.Println("==================")
	fmt.Printf("Total Requests: %d\n", *numRequests)
	fmt.Printf("Successful: %d\n", successCount)
	fmt.Printf("Rate Limited (429): %d\n", limitedCount)
	fmt.Printf("Failed: %d\n", errorCount)
	fmt.Printf("Duration: %v\n", duration)
	fmt.Printf("Requests/sec: %.2f\n", requestsPerSecond)
	fmt.Printf("Success Rate: %.2f%%\n",
		float64(successCount)/float64(*numRequests)*100)
}

func worker(
	id int,
	jobs <-chan int,
	results chan<- int,
	baseURL, apiKey, city string,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	for range jobs {
		req, err := http.NewRequest(
			"GET",
			baseURL+"/weather/current?city="+city,
			nil,
		)
		if err != nil {
			results <- 0
			continue
		}

		req.Header.Set("X-API-Key", apiKey)

		resp, err := client.Do(req)
		if err != nil {
			log.Printf("Worker %d error: %v\n", id, err)
			results <- 0
			continue
		}

		resp.Body.Close()
		results <- resp.StatusCode

		time.Sleep(10 * time.Millisecond)
	}
}
