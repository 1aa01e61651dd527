package peers

import (
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Pinger measures round-trip latency to a VPN address. ok is false when no
// reply arrived.
type Pinger interface {
	Ping(ctx context.Context, ip string) (ms float64, ok bool)
}

// ExecPinger shells out to the system ping once per call.
type ExecPinger struct {
	Timeout time.Duration
}

func (p ExecPinger) Ping(ctx context.Context, ip string) (float64, bool) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	var args []string
	if runtime.GOOS == "windows" {
		args = []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), ip}
	} else {
		sec := max(int((timeout+time.Second-1)/time.Second), 1)
		args = []string{"-n", "-c", "1", "-W", strconv.Itoa(sec), ip}
	}
	// Exit status is ignored: a reply line is what counts.
	out, _ := exec.CommandContext(ctx, "ping", args...).CombinedOutput()
	return ParseLatency(string(out))
}

var latencyKeys = []string{"time=", "time<", "时间=", "时间<"}

// ParseLatency extracts the round-trip time in milliseconds from ping
// output. A "time<N" reading is reported as 1ms.
func ParseLatency(out string) (float64, bool) {
	for _, key := range latencyKeys {
		i := strings.Index(out, key)
		if i < 0 {
			continue
		}
		if strings.HasSuffix(key, "<") {
			return 1, true
		}
		rest := out[i+len(key):]
		j := 0
		for j < len(rest) && (rest[j] == '.' || (rest[j] >= '0' && rest[j] <= '9')) {
			j++
		}
		if v, err := strconv.ParseFloat(rest[:j], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
