package genai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tasklift/tasklift/pkg/models"
	"github.com/tasklift/tasklift/pkg/persist"
)

// countingClient is a Generator that records every call and replays a
// scripted sequence of responses.
type countingClient struct {
	mu        sync.Mutex
	calls     int32
	responses []func() (string, error)
	delay     time.Duration
}

func (c *countingClient) Generate(ctx context.Context, credential string, req Request) (string, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.responses) == 0 {
		return "response " + string(rune('0'+n%10)), nil
	}
	fn := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return fn()
}

func (c *countingClient) count() int { return int(atomic.LoadInt32(&c.calls)) }

func reply(s string) func() (string, error) {
	return func() (string, error) { return s, nil }
}

func fail(err error) func() (string, error) {
	return func() (string, error) { return "", err }
}

// rotatingSource lets tests swap the credential mid-run.
type rotatingSource struct {
	mu  sync.Mutex
	key string
}

func (s *rotatingSource) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

func (s *rotatingSource) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = ""
}

func (s *rotatingSource) set(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryInitialInterval = time.Millisecond
	return cfg
}

func TestMotivateCachesResult(t *testing.T) {
	client := &countingClient{responses: []func() (string, error){reply(`"You have 3 tasks left. Finish strong!"`)}}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	first, err := svc.Motivate(context.Background(), 3)
	if err != nil {
		t.Fatalf("Motivate: %v", err)
	}
	if strings.Contains(first, `"`) {
		t.Errorf("quotes not stripped: %q", first)
	}

	second, err := svc.Motivate(context.Background(), 3)
	if err != nil {
		t.Fatalf("Motivate (cached): %v", err)
	}
	if first != second {
		t.Errorf("cached value changed: %q vs %q", first, second)
	}
	if client.count() != 1 {
		t.Errorf("remote calls = %d, want 1", client.count())
	}
}

func TestConcurrentCallsCoalesce(t *testing.T) {
	client := &countingClient{
		delay:     30 * time.Millisecond,
		responses: []func() (string, error){reply("Keep going!")},
	}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	const n = 8
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.Motivate(context.Background(), 5)
			if err != nil {
				t.Errorf("Motivate: %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	if client.count() != 1 {
		t.Errorf("remote calls = %d, want 1", client.count())
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Errorf("caller %d saw %q, caller 0 saw %q", i, results[i], results[0])
		}
	}
}

func TestQuotaFailsFastAndArmsBreaker(t *testing.T) {
	quotaErr := &APIError{StatusCode: 429, Code: "insufficient_quota", Message: "quota exceeded"}
	client := &countingClient{responses: []func() (string, error){fail(quotaErr)}}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	_, err := svc.Motivate(context.Background(), 1)
	if err == nil {
		t.Fatal("expected quota error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "insufficient_quota" {
		t.Errorf("classified error not propagated: %v", err)
	}
	if client.count() != 1 {
		t.Errorf("quota exhaustion was retried: %d calls", client.count())
	}

	// The breaker now gates every family, not just the one that tripped.
	_, err = svc.Breakdown(context.Background(), "plan the move")
	var cd *CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if client.count() != 1 {
		t.Errorf("call went out during cooldown: %d calls", client.count())
	}
}

func TestBreakerRecoversAfterDeadline(t *testing.T) {
	quotaErr := &APIError{StatusCode: 429, Code: "insufficient_quota", Message: "quota exceeded"}
	client := &countingClient{responses: []func() (string, error){
		fail(quotaErr),
		reply("Back in business."),
	}}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	if _, err := svc.Motivate(context.Background(), 1); err == nil {
		t.Fatal("expected quota error")
	}

	base := time.Now()
	svc.breaker.now = func() time.Time { return base.Add(31 * time.Minute) }

	if _, err := svc.Motivate(context.Background(), 2); err != nil {
		t.Fatalf("call after cooldown expiry: %v", err)
	}
	if client.count() != 2 {
		t.Errorf("remote calls = %d, want 2", client.count())
	}
}

func TestRateLimitRetriedThenSucceeds(t *testing.T) {
	rl := &APIError{StatusCode: 429, Code: "rate_limit_exceeded", Message: "slow down"}
	client := &countingClient{responses: []func() (string, error){
		fail(rl),
		fail(rl),
		reply("Third time lucky."),
	}}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	v, err := svc.Motivate(context.Background(), 4)
	if err != nil {
		t.Fatalf("Motivate: %v", err)
	}
	if v != "Third time lucky." {
		t.Errorf("got %q", v)
	}
	if client.count() != 3 {
		t.Errorf("remote calls = %d, want 3", client.count())
	}
}

func TestRateLimitRetriesExhausted(t *testing.T) {
	rl := &APIError{StatusCode: 429, Code: "rate_limit_exceeded", Message: "slow down"}
	client := &countingClient{responses: []func() (string, error){fail(rl)}}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	_, err := svc.Motivate(context.Background(), 4)
	if err == nil {
		t.Fatal("expected rate limit error after retries")
	}
	if got, want := client.count(), 3; got != want {
		t.Errorf("remote calls = %d, want %d (initial + MaxRetries)", got, want)
	}
	if _, active := svc.CooldownUntil(); active {
		t.Error("transient rate limit armed the breaker")
	}
}

func TestAuthFailureClearsCredential(t *testing.T) {
	authErr := &APIError{StatusCode: 401, Code: "invalid_api_key", Message: "bad key"}
	client := &countingClient{responses: []func() (string, error){fail(authErr)}}
	creds := NewStaticSource("sk-bad")
	svc := NewService(testConfig(), client, creds)

	_, err := svc.Motivate(context.Background(), 1)
	if err == nil {
		t.Fatal("expected auth error")
	}
	if client.count() != 1 {
		t.Errorf("auth rejection was retried: %d calls", client.count())
	}
	if creds.Credential() != "" {
		t.Error("credential not cleared after auth rejection")
	}
}

func TestCredentialRotationIsolatesCache(t *testing.T) {
	client := &countingClient{}
	creds := &rotatingSource{key: "sk-alice"}
	svc := NewService(testConfig(), client, creds)

	if _, err := svc.Motivate(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	creds.set("sk-bob")
	if _, err := svc.Motivate(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if client.count() != 2 {
		t.Errorf("remote calls = %d, want 2: second credential must not see the first's cache", client.count())
	}

	// Rotating back reuses the original scope's entry.
	creds.set("sk-alice")
	if _, err := svc.Motivate(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if client.count() != 2 {
		t.Errorf("remote calls = %d, want 2 after rotating back", client.count())
	}
}

func TestRefineThrottleReturnsDefault(t *testing.T) {
	md := models.TaskMetadata{Category: "shopping", Tags: []string{"errand"}}
	payload, _ := json.Marshal(md)
	client := &countingClient{responses: []func() (string, error){reply(string(payload))}}

	cfg := testConfig()
	cfg.RefineLimit = 2
	svc := NewService(cfg, client, NewStaticSource("sk-test"))

	titles := []string{"buy milk", "buy eggs", "buy bread"}
	for i, title := range titles {
		got, err := svc.Refine(context.Background(), title)
		if err != nil {
			t.Fatalf("Refine(%q): %v", title, err)
		}
		if i < 2 && got.Category != "shopping" {
			t.Errorf("Refine(%q).Category = %q, want shopping", title, got.Category)
		}
		if i == 2 && got.Category != models.DefaultMetadata().Category {
			t.Errorf("over-budget Refine returned %+v, want default", got)
		}
	}
	if client.count() != 2 {
		t.Errorf("remote calls = %d, want 2", client.count())
	}

	// A cache hit still works while the throttle is exhausted.
	got, err := svc.Refine(context.Background(), "buy milk")
	if err != nil {
		t.Fatal(err)
	}
	if got.Category != "shopping" {
		t.Errorf("cached Refine returned %+v during throttle", got)
	}
	if client.count() != 2 {
		t.Errorf("cache hit triggered a remote call: %d", client.count())
	}
}

func TestRefineNormalizesInputForKeying(t *testing.T) {
	md := models.TaskMetadata{Category: "shopping", Tags: []string{"errand"}}
	payload, _ := json.Marshal(md)
	client := &countingClient{responses: []func() (string, error){reply(string(payload))}}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	if _, err := svc.Refine(context.Background(), "  Grocery Trip  "); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Refine(context.Background(), "grocery trip"); err != nil {
		t.Fatal(err)
	}
	if client.count() != 1 {
		t.Errorf("normalized variants did not share a cache key: %d calls", client.count())
	}
}

func TestKitPromptVariantsShareOneCall(t *testing.T) {
	kit := models.TemplateKit{Name: "Grocery Trip", Items: []string{"milk", "eggs", "bread", "butter", "coffee"}, Category: "shopping"}
	payload, _ := json.Marshal(kit)
	client := &countingClient{
		delay:     20 * time.Millisecond,
		responses: []func() (string, error){reply(string(payload))},
	}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	var wg sync.WaitGroup
	for _, prompt := range []string{"  Grocery Trip  ", "grocery trip"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			if _, err := svc.GenerateKit(context.Background(), p); err != nil {
				t.Errorf("GenerateKit(%q): %v", p, err)
			}
		}(prompt)
	}
	wg.Wait()

	if client.count() != 1 {
		t.Errorf("overlapping normalized prompts made %d remote calls, want 1", client.count())
	}
}

func TestRefineEmptyTitleReturnsDefault(t *testing.T) {
	client := &countingClient{}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	got, err := svc.Refine(context.Background(), "   ")
	if err != nil {
		t.Fatal(err)
	}
	if got.Category != "other" {
		t.Errorf("got %+v, want default metadata", got)
	}
	if client.count() != 0 {
		t.Error("empty title reached the remote client")
	}
}

func TestGenerateKitParsesFencedJSON(t *testing.T) {
	kit := models.TemplateKit{Name: "Weekend Trip", Items: []string{"pack bags", "book hotel"}, Category: "travel"}
	payload, _ := json.Marshal(kit)
	client := &countingClient{responses: []func() (string, error){
		reply("```json\n" + string(payload) + "\n```"),
	}}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	got, err := svc.GenerateKit(context.Background(), "weekend trip")
	if err != nil {
		t.Fatalf("GenerateKit: %v", err)
	}
	if got.Name != "Weekend Trip" || len(got.Items) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestBreakdownParsesSteps(t *testing.T) {
	client := &countingClient{responses: []func() (string, error){
		reply(`["pick a date", "book movers", "pack boxes"]`),
	}}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	steps, err := svc.Breakdown(context.Background(), "plan the move")
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if len(steps) != 3 || steps[1] != "book movers" {
		t.Errorf("got %v", steps)
	}
}

func TestMalformedResponseNotCached(t *testing.T) {
	client := &countingClient{responses: []func() (string, error){
		reply("not json at all"),
		reply(`["step one", "step two", "step three"]`),
	}}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	if _, err := svc.Breakdown(context.Background(), "fix the roof"); err == nil {
		t.Fatal("expected parse error")
	}
	steps, err := svc.Breakdown(context.Background(), "fix the roof")
	if err != nil {
		t.Fatalf("retry after parse failure: %v", err)
	}
	if len(steps) != 3 {
		t.Errorf("got %v", steps)
	}
	if client.count() != 2 {
		t.Errorf("remote calls = %d, want 2: the failure must not be cached", client.count())
	}
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	open := func() (*Service, *countingClient) {
		store, err := persist.Open("file", dir)
		if err != nil {
			t.Fatal(err)
		}
		client := &countingClient{responses: []func() (string, error){
			reply(`["step one", "step two", "step three"]`),
		}}
		bridge := persist.NewBridge(store, 10*time.Millisecond, t.Logf)
		return NewService(testConfig(), client, NewStaticSource("sk-test"), WithBridge(bridge)), client
	}

	first, client1 := open()
	if _, err := first.Breakdown(context.Background(), "plan the move"); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	if client1.count() != 1 {
		t.Fatalf("remote calls = %d, want 1", client1.count())
	}

	second, client2 := open()
	defer second.Close()
	steps, err := second.Breakdown(context.Background(), "Plan  The Move")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 3 {
		t.Errorf("restored steps = %v", steps)
	}
	if client2.count() != 0 {
		t.Errorf("restart hit the remote client %d times, want 0", client2.count())
	}
}

func TestCooldownSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	quotaErr := &APIError{StatusCode: 429, Code: "insufficient_quota", Message: "quota exceeded"}

	store, err := persist.Open("file", dir)
	if err != nil {
		t.Fatal(err)
	}
	client := &countingClient{responses: []func() (string, error){fail(quotaErr)}}
	bridge := persist.NewBridge(store, 10*time.Millisecond, t.Logf)
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"), WithBridge(bridge))

	if _, err := svc.Motivate(context.Background(), 1); err == nil {
		t.Fatal("expected quota error")
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	store2, err := persist.Open("file", dir)
	if err != nil {
		t.Fatal(err)
	}
	client2 := &countingClient{}
	bridge2 := persist.NewBridge(store2, 10*time.Millisecond, t.Logf)
	svc2 := NewService(testConfig(), client2, NewStaticSource("sk-test"), WithBridge(bridge2))
	defer svc2.Close()

	_, err = svc2.Motivate(context.Background(), 1)
	var cd *CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("expected CooldownError after restart, got %v", err)
	}
	if client2.count() != 0 {
		t.Errorf("restarted process called remote during cooldown: %d", client2.count())
	}
}

func TestClearCachesForcesRefetch(t *testing.T) {
	client := &countingClient{}
	svc := NewService(testConfig(), client, NewStaticSource("sk-test"))

	if _, err := svc.Motivate(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	svc.ClearCaches()
	if _, err := svc.Motivate(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if client.count() != 2 {
		t.Errorf("remote calls = %d, want 2", client.count())
	}
}

func TestCacheStatsReportsAllFamilies(t *testing.T) {
	svc := NewService(testConfig(), &countingClient{}, NewStaticSource("sk-test"))
	if _, err := svc.Motivate(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	stats := svc.CacheStats()
	for _, family := range []string{"motivation", "metadata", "kit", "breakdown"} {
		if _, ok := stats[family]; !ok {
			t.Errorf("missing family %q in stats", family)
		}
	}
	if stats["motivation"].Misses != 1 || stats["motivation"].Sets != 1 {
		t.Errorf("motivation stats = %+v", stats["motivation"])
	}
}
