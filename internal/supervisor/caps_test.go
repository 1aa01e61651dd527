package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
)

// fakeCapTools resolves the listed tools and records every command run.
type fakeCapTools struct {
	tools     map[string]string
	getcapOut string
	setcapErr error
	runs      []string
}

func (f *fakeCapTools) lookPath(file string) (string, error) {
	if p, ok := f.tools[file]; ok {
		return p, nil
	}
	return "", exec.ErrNotFound
}

func (f *fakeCapTools) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.runs = append(f.runs, strings.Join(append([]string{name}, args...), " "))
	if strings.HasSuffix(name, "getcap") {
		return []byte(f.getcapOut), nil
	}
	if f.setcapErr != nil {
		return []byte("Error: Not authorized"), f.setcapErr
	}
	return nil, nil
}

func allTools() map[string]string {
	return map[string]string{
		"edge":   "/usr/sbin/edge",
		"getcap": "/usr/sbin/getcap",
		"setcap": "/usr/sbin/setcap",
		"pkexec": "/usr/bin/pkexec",
	}
}

func TestCapProvisioner_Ensure(t *testing.T) {
	const granted = "/usr/sbin/edge cap_net_admin,cap_net_raw,cap_setgid,cap_setuid=eip"
	tests := []struct {
		name      string
		euid      int
		path      string
		tools     map[string]string
		getcapOut string
		setcapErr error
		wantPath  string
		wantRuns  []string
		wantErr   bool
	}{
		{
			name:     "root needs nothing",
			euid:     0,
			path:     "edge",
			tools:    allTools(),
			wantPath: "edge",
		},
		{
			name:      "already granted",
			euid:      1000,
			path:      "edge",
			tools:     allTools(),
			getcapOut: granted,
			wantPath:  "/usr/sbin/edge",
			wantRuns:  []string{"/usr/sbin/getcap /usr/sbin/edge"},
		},
		{
			name:      "partial caps are granted again",
			euid:      1000,
			path:      "/opt/n2n/edge",
			tools:     allTools(),
			getcapOut: "/opt/n2n/edge cap_net_admin=ep",
			wantPath:  "/opt/n2n/edge",
			wantRuns: []string{
				"/usr/sbin/getcap /opt/n2n/edge",
				"/usr/bin/pkexec /usr/sbin/setcap cap_net_admin,cap_net_raw,cap_setuid,cap_setgid+eip /opt/n2n/edge",
			},
		},
		{
			name:     "no getcap still grants",
			euid:     1000,
			path:     "/opt/n2n/edge",
			tools:    map[string]string{"setcap": "/usr/sbin/setcap", "pkexec": "/usr/bin/pkexec"},
			wantPath: "/opt/n2n/edge",
			wantRuns: []string{"/usr/bin/pkexec /usr/sbin/setcap cap_net_admin,cap_net_raw,cap_setuid,cap_setgid+eip /opt/n2n/edge"},
		},
		{
			name:    "edge not on PATH",
			euid:    1000,
			path:    "edge",
			tools:   map[string]string{},
			wantErr: true,
		},
		{
			name:    "no pkexec",
			euid:    1000,
			path:    "/opt/n2n/edge",
			tools:   map[string]string{"setcap": "/usr/sbin/setcap"},
			wantErr: true,
		},
		{
			name:    "no setcap",
			euid:    1000,
			path:    "/opt/n2n/edge",
			tools:   map[string]string{"pkexec": "/usr/bin/pkexec"},
			wantErr: true,
		},
		{
			name:      "setcap refused",
			euid:      1000,
			path:      "/opt/n2n/edge",
			tools:     allTools(),
			setcapErr: errors.New("exit status 127"),
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools := &fakeCapTools{tools: tt.tools, getcapOut: tt.getcapOut, setcapErr: tt.setcapErr}
			c := capProvisioner{
				euid:     func() int { return tt.euid },
				lookPath: tools.lookPath,
				run:      tools.run,
				log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
			}

			got, err := c.ensure(context.Background(), tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrCapsMissing) {
					t.Fatalf("ensure err = %v, want ErrCapsMissing", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ensure: %v", err)
			}
			if got != tt.wantPath {
				t.Errorf("path = %q, want %q", got, tt.wantPath)
			}
			if strings.Join(tools.runs, "\n") != strings.Join(tt.wantRuns, "\n") {
				t.Errorf("runs = %q, want %q", tools.runs, tt.wantRuns)
			}
		})
	}
}
