package cache

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
)

func TestCache_RoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.MemoryCapacity = 1
	c := newTestCache[string](t, cfg)

	if err := <-c.SetNotify("greeting", "hello", NeverExpire()); err != nil {
		t.Fatalf("SetNotify failed: %v", err)
	}

	v, ok := c.Get("greeting")
	if !ok || v != "hello" {
		t.Fatalf("Get from memory: got %q, %v", v, ok)
	}

	// Push the entry out of the one-slot memory tier.
	c.Set("other", "value", NeverExpire())
	flush(t, c)

	v, ok = c.Get("greeting")
	if !ok || v != "hello" {
		t.Fatalf("Get from disk: got %q, %v", v, ok)
	}
	if hits := c.Stats().DiskHits; hits != 1 {
		t.Errorf("Expected 1 disk hit, got %d", hits)
	}
}

func TestCache_PersistsAcrossInstances(t *testing.T) {
	cfg := testConfig(t)

	first, err := New[int]("numbers", cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	first.Set("answer", 42, NeverExpire())
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := newTestCache[int](t, cfg)
	v, ok := second.Get("answer")
	if !ok || v != 42 {
		t.Fatalf("Expected 42 from disk, got %d, %v", v, ok)
	}

	// The disk hit was promoted; the second read is served from memory.
	if _, ok := second.Get("answer"); !ok {
		t.Fatal("Second Get missed")
	}
	stats := second.Stats()
	if stats.DiskHits != 1 || stats.Promotions != 1 || stats.MemoryHits != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestCache_ExpiryBoundary(t *testing.T) {
	c := newTestCache[string](t, testConfig(t))

	c.Set("k", "v", ExpireAfter(0))
	if _, ok := c.Get("k"); ok {
		t.Fatal("Entry expiring now should be absent")
	}
}

func TestCache_ExpiredGetRemovesFile(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig(t)
	cfg.Now = clock.Now
	c := newTestCache[string](t, cfg)

	c.Set("session", "token", ExpireAfter(time.Minute))
	flush(t, c)

	path := c.Path("session")
	if !fileExists(path) {
		t.Fatalf("Expected %s to exist", path)
	}

	clock.Advance(2 * time.Minute)

	if _, ok := c.Get("session"); ok {
		t.Fatal("Expected expired entry to be absent")
	}
	flush(t, c)

	if fileExists(path) {
		t.Error("Expired entry file still on disk")
	}
	// Absence is sticky.
	if _, ok := c.Get("session"); ok {
		t.Error("Expired entry came back")
	}
	if n := c.Stats().Expirations; n != 1 {
		t.Errorf("Expected 1 expiration, got %d", n)
	}
}

func TestCache_ExpireAt(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig(t)
	cfg.Now = clock.Now
	c := newTestCache[string](t, cfg)

	c.Set("k", "v", ExpireAt(clock.Now().Add(time.Hour)))

	clock.Advance(59 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("Entry expired early")
	}

	clock.Advance(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("Entry should expire at its deadline")
	}
}

func TestCache_RemoveMissingKey(t *testing.T) {
	c := newTestCache[string](t, testConfig(t))
	c.Set("keep", "v", NeverExpire())

	c.Remove("missing")
	flush(t, c)

	if v, ok := c.Get("keep"); !ok || v != "v" {
		t.Errorf("Unrelated entry changed: %q, %v", v, ok)
	}
	if n := c.Stats().WriteErrors; n != 0 {
		t.Errorf("Unexpected write errors: %d", n)
	}
}

func TestCache_Remove(t *testing.T) {
	c := newTestCache[string](t, testConfig(t))
	c.Set("k", "v", NeverExpire())

	c.Remove("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("Entry still in memory after Remove")
	}

	flush(t, c)
	if fileExists(c.Path("k")) {
		t.Error("Entry still on disk after Remove")
	}
}

func TestCache_SweepExpired(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig(t)
	cfg.Now = clock.Now
	c := newTestCache[string](t, cfg)

	c.Set("a", "1", ExpireAfter(time.Second))
	c.Set("b", "2", ExpireAfter(time.Hour))
	c.Set("c", "3", ExpireAfter(time.Second))
	flush(t, c)

	clock.Advance(time.Minute)
	c.SweepExpired()
	flush(t, c)

	for _, key := range []string{"a", "c"} {
		if fileExists(c.Path(key)) {
			t.Errorf("Expired entry %q still on disk", key)
		}
		if _, ok := c.mem.Get(key); ok {
			t.Errorf("Expired entry %q still in memory", key)
		}
	}

	if v, ok := c.Get("b"); !ok || v != "2" {
		t.Errorf("Valid entry lost by sweep: %q, %v", v, ok)
	}
}

func TestCache_SweepDoesNotPromote(t *testing.T) {
	cfg := testConfig(t)
	seed := newTestCache[string](t, cfg)
	seed.Set("cold", "v", NeverExpire())
	_ = seed.Close()

	c := newTestCache[string](t, cfg)
	c.SweepExpired()
	flush(t, c)

	if _, ok := c.mem.Get("cold"); ok {
		t.Error("Sweep promoted an entry into memory")
	}
}

func TestCache_RemoveAll(t *testing.T) {
	c := newTestCache[string](t, testConfig(t))
	for _, k := range []string{"a", "b", "c"} {
		c.Set(k, k, NeverExpire())
	}

	select {
	case <-c.RemoveAll():
	case <-time.After(5 * time.Second):
		t.Fatal("RemoveAll did not complete")
	}

	for range c.Keys() {
		t.Fatal("Expected no keys on disk")
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := c.Get(k); ok {
			t.Errorf("Key %q survived RemoveAll", k)
		}
	}
}

func TestCache_SetAfterRemoveAllSurvives(t *testing.T) {
	c := newTestCache[string](t, testConfig(t))
	c.Set("a", "old", NeverExpire())

	done := c.RemoveAll()
	c.Set("a", "new", NeverExpire())
	<-done
	flush(t, c)

	c.mem.RemoveAll()
	if v, ok := c.Get("a"); !ok || v != "new" {
		t.Errorf("Expected write queued after RemoveAll to persist, got %q, %v", v, ok)
	}
}

func TestCache_SameKeyWritesApplyInOrder(t *testing.T) {
	cfg := testConfig(t)
	c := newTestCache[int](t, cfg)

	for i := 0; i < 200; i++ {
		c.Set("counter", i, NeverExpire())
	}
	flush(t, c)

	e, ok := c.disk.Read(c.keys.Encode("counter"))
	if !ok || e.Value != 199 {
		t.Fatalf("Expected last write to win on disk, got %d, %v", e.Value, ok)
	}
}

func TestCache_Assign(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig(t)
	cfg.Now = clock.Now
	cfg.DefaultTTL = time.Minute
	c := newTestCache[string](t, cfg)

	v := "value"
	c.Assign("k", &v)
	e, ok := c.Entry("k")
	if !ok || e.Value != "value" {
		t.Fatalf("Assign did not store: %+v, %v", e, ok)
	}
	if want := clock.Now().Add(time.Minute); !e.ExpiresAt.Equal(want) {
		t.Errorf("Expected default TTL expiry %v, got %v", want, e.ExpiresAt)
	}

	c.Assign("k", nil)
	if _, ok := c.Get("k"); ok {
		t.Error("Assigning nil should remove the key")
	}
}

func TestCache_CorruptFileIsMiss(t *testing.T) {
	c := newTestCache[string](t, testConfig(t))

	if err := os.WriteFile(c.Path("broken"), []byte("not gob"), 0o644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	if _, ok := c.Get("broken"); ok {
		t.Fatal("Corrupt entry should read as absent")
	}
	if n := c.Stats().CorruptReads; n != 1 {
		t.Errorf("Expected 1 corrupt read, got %d", n)
	}
}

func TestCache_SanitizedKeysShareEntry(t *testing.T) {
	c := newTestCache[string](t, testConfig(t))

	c.Set("a/b", "slash", NeverExpire())
	v, ok := c.Get("a b")
	if !ok || v != "slash" {
		t.Errorf("Expected sanitized collision, got %q, %v", v, ok)
	}
}

func TestCache_HashKeysAvoidCollisions(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeyCodec = HashKeys{}
	c := newTestCache[string](t, cfg)

	c.Set("a/b", "slash", NeverExpire())
	c.Set("a b", "space", NeverExpire())
	flush(t, c)
	c.mem.RemoveAll()

	if v, _ := c.Get("a/b"); v != "slash" {
		t.Errorf("Get(a/b) = %q", v)
	}
	if v, _ := c.Get("a b"); v != "space" {
		t.Errorf("Get(a b) = %q", v)
	}

	n := 0
	for range c.Keys() {
		n++
	}
	if n != 2 {
		t.Errorf("Expected 2 files, got %d", n)
	}
}

func TestCache_Formats(t *testing.T) {
	type record struct {
		Name  string
		Count int
	}

	tests := []struct {
		format string
		level  int
	}{
		{FormatGob, 0},
		{FormatJSON, 0},
		{FormatYAML, 0},
		{FormatGob, 3},
		{FormatJSON, 19},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s-%d", tt.format, tt.level), func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Format = tt.format
			cfg.CompressionLevel = tt.level
			c := newTestCache[record](t, cfg)

			want := record{Name: "widget", Count: 7}
			if err := <-c.SetNotify("r", want, ExpireAfter(time.Hour)); err != nil {
				t.Fatalf("SetNotify failed: %v", err)
			}
			c.mem.RemoveAll()

			got, ok := c.Get("r")
			if !ok || got != want {
				t.Errorf("Got %+v, %v; want %+v", got, ok, want)
			}
		})
	}
}

func TestCache_RistrettoMemory(t *testing.T) {
	cfg := testConfig(t)
	cfg.MemoryPolicy = MemoryRistretto
	c := newTestCache[string](t, cfg)

	c.Set("k", "v", NeverExpire())
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("Get failed: %q, %v", v, ok)
	}

	c.Remove("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("Entry still present after Remove")
	}
}

// failingWrites rejects every file creation.
type failingWrites struct {
	afero.Fs
}

func (f failingWrites) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_CREATE != 0 {
		return nil, errors.New("disk full")
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestCache_WriteErrorsAreReported(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []string
	)
	cfg := testConfig(t)
	cfg.Directory = "/cache"
	cfg.FileSystem = failingWrites{afero.NewMemMapFs()}
	cfg.OnWriteError = func(key string, err error) {
		mu.Lock()
		failed = append(failed, key)
		mu.Unlock()
	}
	c := newTestCache[string](t, cfg)

	if err := <-c.SetNotify("k", "v", NeverExpire()); err == nil {
		t.Fatal("Expected the disk write to fail")
	}

	// Memory still serves the value.
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Errorf("Expected memory hit, got %q, %v", v, ok)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0] != "k" {
		t.Errorf("OnWriteError calls: %v", failed)
	}
	if n := c.Stats().WriteErrors; n != 1 {
		t.Errorf("Expected 1 write error, got %d", n)
	}
}

func TestNew_DirectoryCreationFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Directory = "/cannot/create"
	cfg.FileSystem = afero.NewReadOnlyFs(afero.NewMemMapFs())

	_, err := New[string]("test", cfg)
	if !errors.Is(err, ErrCreateDirectory) {
		t.Fatalf("Expected ErrCreateDirectory, got %v", err)
	}
}

func TestNew_UnknownSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Format = "xml"
	if _, err := New[string]("test", cfg); err == nil {
		t.Error("Expected error for unknown format")
	}

	cfg = testConfig(t)
	cfg.MemoryPolicy = "mru"
	if _, err := New[string]("test", cfg); err == nil {
		t.Error("Expected error for unknown memory policy")
	}
}

func TestCache_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig(t)
	cfg.Registerer = reg
	c := newTestCache[string](t, cfg)

	c.Set("k", "v", NeverExpire())
	c.Get("k")
	c.Get("missing")

	if n, err := testutil.GatherAndCount(reg, "tiercache_memory_hits_total", "tiercache_misses_total"); err != nil || n != 2 {
		t.Fatalf("Expected 2 registered series, got %d (%v)", n, err)
	}

	stats := c.Stats()
	if stats.MemoryHits != 1 || stats.Misses != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %v", stats.HitRate)
	}

	// A second cache with the same name cannot register the same series.
	cfg2 := testConfig(t)
	cfg2.Registerer = reg
	if _, err := New[string]("test", cfg2); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := newTestCache[int](t, testConfig(t))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				c.Set(key, i, NeverExpire())
				if v, ok := c.Get(key); !ok || v != i {
					t.Errorf("Get(%s) = %d, %v", key, v, ok)
				}
				if i%10 == 0 {
					c.Remove(key)
				}
			}
		}(g)
	}
	wg.Wait()
	flush(t, c)

	n := 0
	for range c.Keys() {
		n++
	}
	if n != 8*45 {
		t.Errorf("Expected %d files, got %d", 8*45, n)
	}
}

func TestCache_All(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig(t)
	cfg.Now = clock.Now
	c := newTestCache[string](t, cfg)

	c.Set("fresh", "1", NeverExpire())
	c.Set("stale", "2", ExpireAfter(time.Second))
	flush(t, c)
	clock.Advance(time.Minute)

	got := map[string]string{}
	for id, e := range c.All() {
		got[id] = e.Value
	}
	if len(got) != 1 || got["fresh"] != "1" {
		t.Errorf("Unexpected entries: %v", got)
	}
}

func TestCache_SweepThenCloseDeletesFiles(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig(t)
	cfg.Now = clock.Now

	c, err := New[string]("test", cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.Set("a", "1", ExpireAfter(time.Second))
	c.Set("b", "2", NeverExpire())
	flush(t, c)

	clock.Advance(time.Minute)
	c.SweepExpired()
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if fileExists(c.Path("a")) {
		t.Error("Expired file survived sweep followed by Close")
	}
	if !fileExists(c.Path("b")) {
		t.Error("Valid file removed by sweep")
	}
}

func TestCache_EntryWithoutExpiryIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Format = FormatJSON
	c := newTestCache[string](t, cfg)

	path := c.Path("blank")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, ok := c.Get("blank"); ok {
		t.Fatal("Entry without expiry read as valid")
	}
	flush(t, c)

	if !fileExists(path) {
		t.Error("Undecodable file was deleted instead of skipped")
	}
	stats := c.Stats()
	if stats.CorruptReads != 1 || stats.Expirations != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
