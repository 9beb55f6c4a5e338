package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"mailscan/internal/config"
	"mailscan/internal/scanner"
	mockscanner "mailscan/internal/scanner/mock"
	"mailscan/pkg/domain"
	"mailscan/pkg/metrics"
)

// newTestApp returns an app whose scanner factory hands out sc and counts
// how often it was asked for one.
func newTestApp(sc scanner.Scanner, calls *int) (*app, *bytes.Buffer) {
	stdout := &bytes.Buffer{}

	return &app{
		stdout: stdout,
		newScanner: func(*config.Config, *metrics.Recorder) (scanner.Scanner, error) {
			*calls++

			return sc, nil
		},
	}, stdout
}

func resultFor(req domain.ScanRequest) *domain.ScanResult {
	res := &domain.ScanResult{
		ScanInfo: domain.ScanInfo{
			ID:        domain.NewScanID(),
			Email:     req.MailAddress,
			Domain:    req.Domain,
			Timestamp: time.Now().UTC(),
		},
		Results: map[domain.Method]any{},
	}
	for _, m := range req.Mask.Normalize().Methods() {
		res.ScanInfo.MethodsUsed = append(res.ScanInfo.MethodsUsed, m)
		res.Results[m] = map[string]any{"domain": req.Domain}
	}

	return res
}

func TestExecute_InvalidAddressMakesNoCalls(t *testing.T) {
	for _, addr := range []string{"bad", "a@b@c", "@example.com", "user@"} {
		t.Run(addr, func(t *testing.T) {
			var calls int
			a, stdout := newTestApp(nil, &calls)

			code := execute(context.Background(), a, []string{"-a", addr})
			require.Equal(t, 1, code)
			require.Zero(t, calls)
			require.Empty(t, stdout.String())
		})
	}
}

func TestExecute_MissingAddress(t *testing.T) {
	var calls int
	a, _ := newTestApp(nil, &calls)

	require.Equal(t, 1, execute(context.Background(), a, []string{"-s"}))
	require.Zero(t, calls)
}

func TestExecute_AllMethodsToStdout(t *testing.T) {
	ctrl := gomock.NewController(t)
	sc := mockscanner.NewMockScanner(ctrl)
	sc.EXPECT().
		Scan(gomock.Any(), domain.ScanRequest{MailAddress: "user@example.com", Domain: "example.com"}).
		DoAndReturn(func(_ context.Context, req domain.ScanRequest) (*domain.ScanResult, error) {
			return resultFor(req), nil
		})

	var calls int
	a, stdout := newTestApp(sc, &calls)

	require.Equal(t, 0, execute(context.Background(), a, []string{"--mailaddress", "user@example.com"}))
	require.Equal(t, 1, calls)

	var doc struct {
		ScanInfo struct {
			Domain      string   `json:"domain"`
			MethodsUsed []string `json:"methods_used"`
		} `json:"scan_info"`
		Results map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
	require.Equal(t, "example.com", doc.ScanInfo.Domain)
	require.Equal(t, []string{"autoconfig", "autodiscover", "srv", "buildin"}, doc.ScanInfo.MethodsUsed)
	require.Len(t, doc.Results, 4)
}

func TestExecute_SRVOnlyToFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	sc := mockscanner.NewMockScanner(ctrl)
	sc.EXPECT().
		Scan(gomock.Any(), domain.ScanRequest{MailAddress: "user@example.com", Domain: "example.com", Mask: domain.MaskSRV}).
		DoAndReturn(func(_ context.Context, req domain.ScanRequest) (*domain.ScanResult, error) {
			return resultFor(req), nil
		})

	var calls int
	a, stdout := newTestApp(sc, &calls)
	path := filepath.Join(t.TempDir(), "reports", "nested", "scan.json")

	require.Equal(t, 0, execute(context.Background(), a, []string{"-a", "user@example.com", "-s", "-o", path}))
	require.Empty(t, stdout.String())

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &doc))
	require.Contains(t, doc, "scan_info")
	require.Contains(t, doc, "results")

	var info struct {
		MethodsUsed []string `json:"methods_used"`
	}
	require.NoError(t, json.Unmarshal(doc["scan_info"], &info))
	require.Equal(t, []string{"srv"}, info.MethodsUsed)
}

func TestExecute_WriteFailureKeepsExitStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	sc := mockscanner.NewMockScanner(ctrl)
	sc.EXPECT().Scan(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.ScanRequest) (*domain.ScanResult, error) {
			return resultFor(req), nil
		})

	// the parent of the report is a regular file
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	var calls int
	a, _ := newTestApp(sc, &calls)

	require.Equal(t, 0, execute(context.Background(), a, []string{"-a", "user@example.com", "-b", "-o", filepath.Join(blocker, "scan.json")}))
}

func TestExecute_ScanFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sc := mockscanner.NewMockScanner(ctrl)
	sc.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(nil, context.Canceled)

	var calls int
	a, stdout := newTestApp(sc, &calls)

	require.Equal(t, 1, execute(context.Background(), a, []string{"-a", "user@example.com"}))
	require.Empty(t, stdout.String())
}

func TestExecute_ScannerFactoryFailure(t *testing.T) {
	stdout := &bytes.Buffer{}
	a := &app{
		stdout: stdout,
		newScanner: func(*config.Config, *metrics.Recorder) (scanner.Scanner, error) {
			return nil, errors.New("no table")
		},
	}

	require.Equal(t, 1, execute(context.Background(), a, []string{"-a", "user@example.com"}))
}

func TestScanOptions_Mask(t *testing.T) {
	require.Equal(t, domain.MethodMask(0), scanOptions{}.mask())
	require.Equal(t, domain.MaskAutoconfig|domain.MaskBuildin, scanOptions{autoconfig: true, buildin: true}.mask())
	require.Equal(t, domain.MaskAll, scanOptions{autoconfig: true, autodiscover: true, srv: true, buildin: true}.mask())
}

func TestExecute_Providers(t *testing.T) {
	var calls int
	a, stdout := newTestApp(nil, &calls)

	require.Equal(t, 0, execute(context.Background(), a, []string{"providers", "--tsv"}))
	require.Zero(t, calls)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 318)
	require.Contains(t, lines, "gmail.com\tgmail\tpreparation")
}

func TestExecute_ProvidersTable(t *testing.T) {
	var calls int
	a, stdout := newTestApp(nil, &calls)

	require.Equal(t, 0, execute(context.Background(), a, []string{"providers"}))
	require.Contains(t, stdout.String(), "DOMAIN")
	require.Contains(t, stdout.String(), "gmail.com")
	require.Contains(t, stdout.String(), "318")
}

func TestNewScanner_FromDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	sc, err := newScanner(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, sc)
}
