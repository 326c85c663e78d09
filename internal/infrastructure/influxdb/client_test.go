package influxdb

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

var testDevice = uuid.MustParse("784f394c-42b6-435a-983c-b7beff2784f9")

// testConfig matches a local development InfluxDB on 127.0.0.1:8086.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "twinsync-dev-token",
		Org:           "twinsync",
		Bucket:        "attributes",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func newFakeClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	return &Client{writer: w, connected: true}, w
}

func TestNewAttributePoint(t *testing.T) {
	ts := time.UnixMilli(1700000000123)

	tests := []struct {
		name      string
		value     twin.Value
		wantOK    bool
		wantField string
		wantValue any
	}{
		{"int", twin.Int(21), true, FieldNumber, float64(21)},
		{"float", twin.Float(21.5), true, FieldNumber, 21.5},
		{"bool", twin.Bool(true), true, FieldBool, true},
		{"string", twin.String("eco"), true, FieldText, "eco"},
		{"null", twin.Null(), false, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := NewAttributePoint(testDevice, twin.ScopeShared, "temperature", tt.value, ts)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}

			if p.Name() != Measurement {
				t.Errorf("Name() = %q, want %q", p.Name(), Measurement)
			}
			if !p.Time().Equal(ts) {
				t.Errorf("Time() = %v, want %v", p.Time(), ts)
			}

			tags := make(map[string]string)
			for _, tag := range p.TagList() {
				tags[tag.Key] = tag.Value
			}
			wantTags := map[string]string{
				"device_id": testDevice.String(),
				"scope":     "SHARED_SCOPE",
				"attribute": "attrscope__SHARED_SCOPE__name__temperature",
			}
			for k, v := range wantTags {
				if tags[k] != v {
					t.Errorf("tag %s = %q, want %q", k, tags[k], v)
				}
			}

			fields := p.FieldList()
			if len(fields) != 1 {
				t.Fatalf("fields = %d, want 1", len(fields))
			}
			if fields[0].Key != tt.wantField || fields[0].Value != tt.wantValue {
				t.Errorf("field = %s:%v, want %s:%v", fields[0].Key, fields[0].Value, tt.wantField, tt.wantValue)
			}
		})
	}
}

func TestNewAttributePoint_NonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, ok := NewAttributePoint(testDevice, twin.ScopeClient, "x", twin.Float(f), time.Now()); ok {
			t.Errorf("NewAttributePoint(%v) ok = true, want false", f)
		}
	}
}

func TestRecordUpdate(t *testing.T) {
	client, w := newFakeClient()
	ctx := context.Background()

	updates := []twin.AttributeUpdate{
		{Key: "a", Timestamp: 1000, Value: twin.Int(1)},
		{Key: "b", Timestamp: 2000, Value: twin.Null()},
		{Key: "c", Timestamp: 3000, Value: twin.String("x")},
	}
	for _, u := range updates {
		if err := client.RecordUpdate(ctx, testDevice, twin.ScopeServer, u); err != nil {
			t.Fatalf("RecordUpdate(%s) error = %v", u, err)
		}
	}

	if len(w.points) != 2 {
		t.Fatalf("points written = %d, want 2 (null skipped)", len(w.points))
	}
	if got := w.points[1].Time().UnixMilli(); got != 3000 {
		t.Errorf("second point time = %d, want 3000", got)
	}
}

func TestClosedClient(t *testing.T) {
	client, w := newFakeClient()

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes on Close = %d, want 1", w.flushes)
	}

	err := client.WriteAttribute(testDevice, twin.ScopeClient, "a", twin.Int(1), time.Now())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("WriteAttribute() after Close error = %v, want ErrNotConnected", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	client.Flush()
	if w.flushes != 1 {
		t.Errorf("Flush() after Close flushed again")
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Live(t *testing.T) {
	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	u := twin.NewAttributeUpdate("temperature", time.Now(), twin.Float(21.5))
	if err := client.RecordUpdate(context.Background(), testDevice, twin.ScopeShared, u); err != nil {
		t.Errorf("RecordUpdate() error = %v", err)
	}
	client.Flush()
}
