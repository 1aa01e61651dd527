package classify

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"n2nmaid"
)

func TestClassify_SuccessMarkers(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		wantIP string
	}{
		{name: "registered with address", line: "Registered with 10.0.0.5:7777", wantIP: "10.0.0.5"},
		{name: "lowercase marker", line: "edge registered with supernode 192.168.7.1", wantIP: "192.168.7.1"},
		{name: "ok banner", line: "15/Oct/2026 10:01:02 [edge_utils.c:1602] [OK] edge <<< ================ >>> supernode"},
		{name: "bare banner", line: "edge <<< ======== >>> supernode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(Stdout, tt.line)
			if res.Signal == nil || res.Signal.Kind != SignalConnected {
				t.Fatalf("Classify(%q) signal = %+v, want connected", tt.line, res.Signal)
			}
			if res.Signal.Identity.IP != tt.wantIP {
				t.Errorf("identity ip = %q, want %q", res.Signal.Identity.IP, tt.wantIP)
			}
			if res.Record.Level != n2nmaid.LevelInfo {
				t.Errorf("level = %s, want INFO", res.Record.Level)
			}
		})
	}
}

func TestClassify_NegatedRegistrationIsNotSuccess(t *testing.T) {
	res := Classify(Stdout, "edge not registered with supernode yet")
	if res.Signal != nil {
		t.Fatalf("signal = %+v, want none", res.Signal)
	}
}

func TestClassify_FailureMarkers(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"ERROR: tuntap ioctl(TUNSETIFF, IFF_TAP) error: Device or resource busy[-1]", n2nmaid.ReasonTapBusy},
		{"ERROR: tuntap open() error: No such file or directory[2]. Is the tun kernel module loaded?", n2nmaid.ReasonTapCreateDenied},
		{"ERROR: failed to open TAP device", n2nmaid.ReasonTapCreateDenied},
		{"[edge_utils.c:2558] ERROR: authentication error, MAC or IP address already in use or not released yet by supernode", n2nmaid.ReasonAddressInUse},
		{"bind: Address already in use", n2nmaid.ReasonAddressInUse},
		{"setuid: Operation not permitted", n2nmaid.ReasonPermissionDenied},
		{"open /dev/net/tun: permission denied", n2nmaid.ReasonPermissionDenied},
		{"sendto: No route to host", n2nmaid.ReasonSupernodeUnreached},
		{"WARNING: supernode not responding, now trying next", n2nmaid.ReasonSupernodeUnreached},
		{"ERROR: unable to resolve supernode vpn.example.com", n2nmaid.ReasonSupernodeUnreached},
		{"ERROR: authentication error with supernode", n2nmaid.ReasonAuthFailed},
		{"auth token error", n2nmaid.ReasonAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			res := Classify(Stderr, tt.line)
			if res.Signal == nil || res.Signal.Kind != SignalError {
				t.Fatalf("Classify(%q) signal = %+v, want error", tt.line, res.Signal)
			}
			if res.Signal.Reason != tt.want {
				t.Errorf("Classify(%q) reason = %q, want %q", tt.line, res.Signal.Reason, tt.want)
			}
			if res.Record.Level != n2nmaid.LevelErr {
				t.Errorf("level = %s, want ERR", res.Record.Level)
			}
			if res.Unrecognized {
				t.Error("matched failure marked unrecognized")
			}
		})
	}
}

func TestClassify_EveryReasonIsReachable(t *testing.T) {
	samples := map[string]string{
		n2nmaid.ReasonTapBusy:            "TUNSETIFF: resource busy",
		n2nmaid.ReasonTapCreateDenied:    "failed to create tap",
		n2nmaid.ReasonAddressInUse:       "already in use",
		n2nmaid.ReasonPermissionDenied:   "EPERM",
		n2nmaid.ReasonSupernodeUnreached: "network is unreachable",
		n2nmaid.ReasonAuthFailed:         "unauthorized",
	}
	for _, reason := range Reasons() {
		line, ok := samples[reason]
		if !ok {
			t.Errorf("no sample for reason %q", reason)
			continue
		}
		res := Classify(Stdout, line)
		if res.Signal == nil || res.Signal.Reason != reason {
			t.Errorf("Classify(%q) = %+v, want reason %q", line, res.Signal, reason)
		}
	}
}

func TestClassify_PlainLinesFollowOrigin(t *testing.T) {
	tests := []struct {
		name   string
		stream Stream
		line   string
		want   n2nmaid.Level
	}{
		{"stdout", Stdout, "Using compression: none", n2nmaid.LevelOut},
		{"stderr", Stderr, "Using compression: none", n2nmaid.LevelErr},
		{"warning token", Stdout, "15/Oct/2026 [edge.c:312] WARNING: unknown option -f", n2nmaid.LevelWarn},
		{"warn bracket", Stderr, "[WARN] slow supernode", n2nmaid.LevelWarn},
		{"info bracket", Stderr, "[INFO] reading config", n2nmaid.LevelInfo},
		{"lowercase is not a token", Stdout, "information: nothing", n2nmaid.LevelOut},
		{"empty", Stdout, "", n2nmaid.LevelOut},
		{"whitespace", Stderr, "   \t", n2nmaid.LevelErr},
		{"invalid utf8", Stdout, "bad \xff\xfe bytes", n2nmaid.LevelOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(tt.stream, tt.line)
			if res.Signal != nil {
				t.Fatalf("signal = %+v, want none", res.Signal)
			}
			if res.Record.Level != tt.want {
				t.Errorf("level = %s, want %s", res.Record.Level, tt.want)
			}
		})
	}
}

func TestClassify_TrimsLineEndings(t *testing.T) {
	res := Classify(Stdout, "hello\r\n")
	if res.Record.Text != "hello" {
		t.Errorf("text = %q, want %q", res.Record.Text, "hello")
	}
}

func TestClassify_TapDeviceIdentity(t *testing.T) {
	line := "created local tap device IP: 192.168.125.67, Mask: 255.255.255.0, MAC: C6:D2:CB:35:42:85"
	res := Classify(Stdout, line)
	if res.Signal == nil || res.Signal.Kind != SignalIdentity {
		t.Fatalf("signal = %+v, want identity", res.Signal)
	}
	want := n2nmaid.NetworkInfo{IP: "192.168.125.67", Mask: "255.255.255.0", MAC: "C6:D2:CB:35:42:85"}
	if res.Signal.Identity != want {
		t.Errorf("identity = %+v, want %+v", res.Signal.Identity, want)
	}
}

func TestClassify_InterfaceNameIdentity(t *testing.T) {
	res := Classify(Stdout, "Interface n2n0 created")
	if res.Signal == nil || res.Signal.Kind != SignalIdentity {
		t.Fatalf("signal = %+v, want identity", res.Signal)
	}
	if res.Signal.Identity.Interface != "n2n0" {
		t.Errorf("interface = %q, want n2n0", res.Signal.Identity.Interface)
	}
}

func TestClassify_UnrecognizedFailure(t *testing.T) {
	res := Classify(Stdout, "ERROR: something brand new went wrong")
	if res.Signal != nil {
		t.Fatalf("signal = %+v, want none", res.Signal)
	}
	if !res.Unrecognized {
		t.Error("failure-looking line not flagged unrecognized")
	}

	if Classify(Stdout, "peer 10.0.0.2 joined").Unrecognized {
		t.Error("benign line flagged unrecognized")
	}
}

func TestObserve_CountsUnrecognized(t *testing.T) {
	before := testutil.ToFloat64(unrecognizedFailures)
	Observe(Stdout, Classify(Stdout, "cannot do the new thing"))
	Observe(Stdout, Classify(Stdout, "all good"))
	if got := testutil.ToFloat64(unrecognizedFailures); got != before+1 {
		t.Errorf("unrecognized counter = %v, want %v", got, before+1)
	}

	sigBefore := testutil.ToFloat64(signals.WithLabelValues("error", n2nmaid.ReasonTapBusy))
	Observe(Stderr, Classify(Stderr, "TUNSETIFF: Device or resource busy"))
	if got := testutil.ToFloat64(signals.WithLabelValues("error", n2nmaid.ReasonTapBusy)); got != sigBefore+1 {
		t.Errorf("signal counter = %v, want %v", got, sigBefore+1)
	}
}

func TestMetrics_ErrorSeriesExportedUpFront(t *testing.T) {
	distinct := make(map[string]bool)
	for _, r := range Reasons() {
		distinct[r] = true
	}
	if got := testutil.CollectAndCount(signals); got < len(distinct) {
		t.Errorf("signal series = %d, want at least %d", got, len(distinct))
	}
}
