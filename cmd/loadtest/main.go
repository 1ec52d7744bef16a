package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	adminEmail := flag.String("admin-email", "admin@storefront.local", "admin account email")
	adminPass := flag.String("admin-pass", "", "admin account password")
	stock := flag.Int("stock", 10, "initial stock of the test product")

	// 超卖测试参数：200 个客户并发抢 10 件
	nUsers := flag.Int("users", 200, "distinct customers")
	concurrency := flag.Int("c", 50, "max concurrency")
	burst := flag.Int("burst", 50, "requests from one customer for the rate limit test")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	adminToken, err := login(client, *baseURL, *adminEmail, *adminPass)
	if err != nil {
		panic(fmt.Sprintf("admin login failed: %v", err))
	}
	productID, err := createProduct(client, *baseURL, adminToken, *stock)
	if err != nil {
		panic(fmt.Sprintf("create product failed: %v", err))
	}
	fmt.Printf("product %s created with stock %d\n", productID, *stock)

	tokens := signupCustomers(client, *baseURL, *nUsers, *concurrency)
	fmt.Printf("%d customers signed up\n", len(tokens))

	// 1) 不超卖测试：不同客户并发下单
	fmt.Printf("start oversell test: product=%s users=%d concurrency=%d\n", productID, len(tokens), *concurrency)
	results := runParallel(len(tokens), *concurrency, func(i int) Result {
		return checkoutOnce(client, *baseURL, tokens[i], productID)
	})
	printSummary("oversell", results)

	final, err := getStock(client, *baseURL, productID)
	if err != nil {
		fmt.Println("stock check err:", err)
	} else {
		sold := 0
		for _, r := range results {
			if r.Status == http.StatusCreated {
				sold++
			}
		}
		fmt.Printf("final stock: %d, orders created: %d, oversold: %v\n",
			final, sold, final < 0 || int64(sold) != int64(*stock)-final)
	}

	// 2) 限流测试：同一客户并发重复下单，应当出现 429
	if len(tokens) > 0 && *burst > 0 {
		fmt.Printf("\nstart rate limit test: same customer, %d requests\n", *burst)
		results2 := runParallel(*burst, *burst, func(int) Result {
			return checkoutOnce(client, *baseURL, tokens[0], productID)
		})
		printSummary("rate_limit", results2)
	}
}

func runParallel(total, concurrency int, fn func(i int) Result) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = fn(idx)
		}(i)
	}
	wg.Wait()
	return results
}

func signupCustomers(client *http.Client, baseURL string, n, concurrency int) []string {
	var mu sync.Mutex
	tokens := make([]string, 0, n)
	runParallel(n, concurrency, func(int) Result {
		email := fmt.Sprintf("load+%s@storefront.local", uuid.NewString()[:8])
		env, status, err := post(client, baseURL+"/api/auth/signup", "", map[string]any{
			"first_name": "Load", "last_name": "Test", "email": email, "password": "loadtest", "phone": "0000000000",
		})
		if err != nil || status != http.StatusCreated {
			return Result{Status: status, Err: err}
		}
		var sess struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(env.Data, &sess); err == nil {
			mu.Lock()
			tokens = append(tokens, sess.Token)
			mu.Unlock()
		}
		return Result{Status: status}
	})
	return tokens
}

func checkoutOnce(client *http.Client, baseURL, token, productID string) Result {
	body, _ := json.Marshal(map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 1}},
		"shipping_address": map[string]string{
			"address": "1 Load St", "pincode": "000000", "city": "Bench", "state": "LT", "country": "IN",
		},
	})
	req, _ := http.NewRequest(http.MethodPost, baseURL+"/api/orders/checkout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(b)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	codes := make([]int, 0, len(count))
	for code := range count {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, count[code])
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

func post(client *http.Client, url, token string, body any) (envelope, int, error) {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return envelope{}, 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, resp.StatusCode, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 300 {
		return env, resp.StatusCode, fmt.Errorf("status=%d msg=%s", resp.StatusCode, env.Msg)
	}
	return env, resp.StatusCode, nil
}

func login(client *http.Client, baseURL, email, password string) (string, error) {
	env, _, err := post(client, baseURL+"/api/auth/login", "", map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	var sess struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		return "", err
	}
	return sess.Token, nil
}

func createProduct(client *http.Client, baseURL, token string, stock int) (string, error) {
	env, _, err := post(client, baseURL+"/api/products", token, map[string]any{
		"name": "loadtest-" + uuid.NewString()[:8], "price": "1.00", "stock": stock,
	})
	if err != nil {
		return "", err
	}
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return "", err
	}
	return p.ID, nil
}

// getStock 查询数据库中当前库存，用于压测后校验是否出现超卖。
func getStock(client *http.Client, baseURL, productID string) (int64, error) {
	resp, err := client.Get(baseURL + "/api/products/" + productID)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	var out struct {
		Data struct {
			Stock int64 `json:"stock"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Stock, nil
}
