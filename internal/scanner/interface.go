package scanner

import (
	"context"

	"mailscan/pkg/domain"
)

//go:generate mockgen -package mockscanner -source=interface.go -destination=mock/mockscanner.go *
type Scanner interface {
	Scan(ctx context.Context, req domain.ScanRequest) (*domain.ScanResult, error)
}
