package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/charlie0129/podwatch/pkg/airpods/airpodstest"
	"github.com/charlie0129/podwatch/pkg/config"
	"github.com/charlie0129/podwatch/pkg/events"
	"github.com/charlie0129/podwatch/pkg/manager"
	"github.com/charlie0129/podwatch/pkg/version"
)

func setupTest(t *testing.T) http.Handler {
	t.Helper()
	return setupTestWithLocator(t, nil)
}

func setupTestWithLocator(t *testing.T, locator manager.DeviceLocator) http.Handler {
	t.Helper()
	conf = config.NewFileFromConfig(&config.RawFileConfig{}, filepath.Join(t.TempDir(), "podwatch.json"))
	sseHub = events.NewEventHub()
	opts := managerOptions(conf, locator, sseHub)
	opts.RequireConnectedDevice = false
	mgr = manager.New(opts)
	t.Cleanup(func() {
		mgr.Close()
		sseHub.Close()
	})
	return setupRoutes()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetVersion(t *testing.T) {
	h := setupTest(t)
	w := do(h, http.MethodGet, "/version", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /version = %d, want %d", w.Code, http.StatusOK)
	}
	var got string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got != version.Version {
		t.Errorf("GET /version = %q, %v, want %q", got, err, version.Version)
	}
}

func TestSetMinRSSI(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		want     int16
	}{
		{name: "valid", body: "-70", wantCode: http.StatusCreated, want: -70},
		{name: "zero", body: "0", wantCode: http.StatusCreated, want: 0},
		{name: "positive", body: "10", wantCode: http.StatusBadRequest, want: -80},
		{name: "too low", body: "-128", wantCode: http.StatusBadRequest, want: -80},
		{name: "not a number", body: `"loud"`, wantCode: http.StatusBadRequest, want: -80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupTest(t)
			w := do(h, http.MethodPut, "/min-rssi", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("PUT /min-rssi %s = %d, want %d", tt.body, w.Code, tt.wantCode)
			}
			if got := conf.MinRSSI(); got != tt.want {
				t.Errorf("conf.MinRSSI() = %d, want %d", got, tt.want)
			}
			if got := mgr.MinRSSI(); got != tt.want {
				t.Errorf("mgr.MinRSSI() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSetAutomaticEarDetection(t *testing.T) {
	h := setupTest(t)
	if w := do(h, http.MethodPut, "/automatic-ear-detection", "false"); w.Code != http.StatusCreated {
		t.Fatalf("PUT /automatic-ear-detection = %d, want %d", w.Code, http.StatusCreated)
	}
	if conf.AutomaticEarDetection() {
		t.Errorf("conf.AutomaticEarDetection() = true after disabling")
	}
	if w := do(h, http.MethodPut, "/automatic-ear-detection", "maybe"); w.Code != http.StatusBadRequest {
		t.Errorf("PUT /automatic-ear-detection maybe = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSetBoundDevice(t *testing.T) {
	h := setupTest(t)

	w := do(h, http.MethodPut, "/bound-device", `"11-22-33-44-55-66"`)
	if w.Code != http.StatusCreated {
		t.Fatalf("PUT /bound-device = %d, want %d: %s", w.Code, http.StatusCreated, w.Body)
	}
	if got := conf.BoundDeviceAddress(); got != "11:22:33:44:55:66" {
		t.Errorf("conf.BoundDeviceAddress() = %q, want normalized address", got)
	}
	if got := mgr.Status().BoundDevice; got != "11:22:33:44:55:66" {
		t.Errorf("Status().BoundDevice = %q", got)
	}

	if w := do(h, http.MethodPut, "/bound-device", `"not an address"`); w.Code != http.StatusBadRequest {
		t.Errorf("PUT /bound-device invalid = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := conf.BoundDeviceAddress(); got != "11:22:33:44:55:66" {
		t.Errorf("conf.BoundDeviceAddress() = %q after a rejected request", got)
	}

	if w := do(h, http.MethodPut, "/bound-device", `""`); w.Code != http.StatusCreated {
		t.Errorf("PUT /bound-device empty = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := conf.BoundDeviceAddress(); got != "" {
		t.Errorf("conf.BoundDeviceAddress() = %q after unbinding", got)
	}
}

type knownDevice struct{ addr uint64 }

func (d knownDevice) Address() uint64 { return d.addr }
func (d knownDevice) DisplayName() string { return "" }
func (d knownDevice) IsConnected() (bool, error) { return true, nil }
func (d knownDevice) WatchConnection(func(bool)) (func(), error) { return func() {}, nil }

type knownLocator struct{ addr uint64 }

func (l knownLocator) FindDevice(addr uint64) (manager.Device, error) {
	if addr != l.addr {
		return nil, errors.New("device not found")
	}
	return knownDevice{addr: addr}, nil
}

func TestSetBoundDeviceUnknown(t *testing.T) {
	h := setupTestWithLocator(t, knownLocator{addr: 0x112233445566})

	if w := do(h, http.MethodPut, "/bound-device", `"11:22:33:44:55:66"`); w.Code != http.StatusCreated {
		t.Fatalf("PUT /bound-device = %d, want %d: %s", w.Code, http.StatusCreated, w.Body)
	}
	if w := do(h, http.MethodPut, "/bound-device", `"AA:AA:AA:AA:AA:AA"`); w.Code != http.StatusBadRequest {
		t.Errorf("PUT /bound-device unknown = %d, want %d", w.Code, http.StatusBadRequest)
	}

	st := mgr.Status()
	if got := conf.BoundDeviceAddress(); got != "11:22:33:44:55:66" || st.BoundDevice != got {
		t.Errorf("conf.BoundDeviceAddress() = %q, Status().BoundDevice = %q, want both 11:22:33:44:55:66", got, st.BoundDevice)
	}
	if !st.Connected {
		t.Errorf("Status().Connected = false after a rejected bind")
	}
}

func TestSetLidOpenCodes(t *testing.T) {
	h := setupTest(t)

	if w := do(h, http.MethodPut, "/lid-open-codes", "[1, 3]"); w.Code != http.StatusCreated {
		t.Fatalf("PUT /lid-open-codes = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := conf.LidOpenCodes(); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("conf.LidOpenCodes() = %v, want [1 3]", got)
	}

	if w := do(h, http.MethodPut, "/lid-open-codes", "[1, 300]"); w.Code != http.StatusBadRequest {
		t.Errorf("PUT /lid-open-codes out of range = %d, want %d", w.Code, http.StatusBadRequest)
	}

	if w := do(h, http.MethodPut, "/lid-open-codes", "[]"); w.Code != http.StatusCreated {
		t.Fatalf("PUT /lid-open-codes empty = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := conf.LidOpenCodes(); len(got) != 8 {
		t.Errorf("conf.LidOpenCodes() = %v, want the default table", got)
	}
}

func TestStateAndAdvertisement(t *testing.T) {
	h := setupTest(t)

	if w := do(h, http.MethodGet, "/advertisement", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET /advertisement = %d before any advertisement, want %d", w.Code, http.StatusNotFound)
	}

	mgr.OnAdvertisementReceived(airpodstest.Pods(true, 8, 7, 9).Data(0xABC, -50, time.Now()))

	w := do(h, http.MethodGet, "/advertisement", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /advertisement = %d, want %d", w.Code, http.StatusOK)
	}
	var info manager.AdvertisementInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if !info.Accepted || info.RSSI != -50 {
		t.Errorf("GET /advertisement = %+v", info)
	}

	w = do(h, http.MethodGet, "/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /state = %d, want %d", w.Code, http.StatusOK)
	}
	var st manager.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.State == nil || st.State.Pods.Left.Battery.Value() != 80 || st.State.Case.Battery.Value() != 90 {
		t.Errorf("GET /state = %+v", st)
	}

	if w := do(h, http.MethodPost, "/disconnect", ""); w.Code != http.StatusCreated {
		t.Errorf("POST /disconnect = %d, want %d", w.Code, http.StatusCreated)
	}
	if _, ok := mgr.State(); ok {
		t.Errorf("State() still set after POST /disconnect")
	}
}

func TestGetConfig(t *testing.T) {
	h := setupTest(t)
	w := do(h, http.MethodGet, "/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /config = %d, want %d", w.Code, http.StatusOK)
	}
	var raw config.RawFileConfig
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if raw.MinRSSI == nil || *raw.MinRSSI != -80 || raw.Scanner == nil || *raw.Scanner != "bluetooth" {
		t.Errorf("GET /config = %s", w.Body)
	}
}

func TestGetEvents(t *testing.T) {
	srv := httptest.NewServer(setupTest(t))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	deadline := time.Now().Add(5 * time.Second)
	for sseHub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	sseHub.Publish(events.DeviceLost, events.DeviceLostEvent{Ts: 42})

	r := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	want := []string{"event:" + events.DeviceLost, `data:{"ts":42}`}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("event stream = %q, want %q", lines, want)
	}
}
