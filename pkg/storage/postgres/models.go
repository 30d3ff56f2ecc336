package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"qrscanner/pkg/domain"
	"time"

	"github.com/google/uuid"
)

type PgScan struct {
	ID uuid.UUID `db:"id"`

	FileName string          `db:"file_name"`
	FilePath string          `db:"file_path"`
	FileSize int64           `db:"file_size"`
	Options  json.RawMessage `db:"options"`
	Status   string          `db:"status"`
	Result   json.RawMessage `db:"result" goqu:"skipinsert"`

	Attempts  uint           `db:"attempts"   goqu:"skipinsert"`
	LastError sql.NullString `db:"last_error" goqu:"skipinsert"`

	CreatedAt time.Time    `db:"created_at" goqu:"skipinsert"`
	UpdatedAt sql.NullTime `db:"updated_at" goqu:"skipinsert"`
	DeletedAt sql.NullTime `db:"deleted_at" goqu:"skipinsert"`
}

func (p *PgScan) ToDomain() (*domain.Scan, error) {
	var opts domain.ScanOptions
	if len(p.Options) > 0 {
		if err := json.Unmarshal(p.Options, &opts); err != nil {
			return nil, fmt.Errorf("could not unmarshal scan options: %w", err)
		}
	}

	var result *domain.ScanResults
	if len(p.Result) > 0 && string(p.Result) != "null" {
		result = &domain.ScanResults{}
		if err := json.Unmarshal(p.Result, result); err != nil {
			return nil, fmt.Errorf("could not unmarshal scan result: %w", err)
		}
	}

	return &domain.Scan{
		ID: domain.ScanID(p.ID),
		File: domain.FileInfo{
			Name: p.FileName,
			Path: p.FilePath,
			Size: p.FileSize,
		},
		Options:   opts,
		Status:    domain.ScanStatus(p.Status),
		Result:    result,
		Attempts:  p.Attempts,
		LastError: p.LastError.String,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt.Time,
		DeletedAt: p.DeletedAt.Time,
	}, nil
}

func (p *PgScan) FromDomain(scan domain.Scan) error {
	opts, err := json.Marshal(scan.Options)
	if err != nil {
		return fmt.Errorf("could not marshal scan options: %w", err)
	}

	var result json.RawMessage
	if scan.Result != nil {
		if result, err = json.Marshal(scan.Result); err != nil {
			return fmt.Errorf("could not marshal scan result: %w", err)
		}
	}

	*p = PgScan{
		ID:       uuid.UUID(scan.ID),
		FileName: scan.File.Name,
		FilePath: scan.File.Path,
		FileSize: scan.File.Size,
		Options:  opts,
		Status:   string(scan.Status),
		Result:   result,
		Attempts: scan.Attempts,
		LastError: sql.NullString{
			String: scan.LastError,
			Valid:  scan.LastError != "",
		},
		CreatedAt: scan.CreatedAt,
		UpdatedAt: sql.NullTime{
			Time:  scan.UpdatedAt,
			Valid: !scan.UpdatedAt.IsZero(),
		},
		DeletedAt: sql.NullTime{
			Time:  scan.DeletedAt,
			Valid: !scan.DeletedAt.IsZero(),
		},
	}

	return nil
}

func domainScansToPg(scans []domain.Scan) ([]PgScan, error) {
	out := make([]PgScan, len(scans))
	for i := range out {
		if err := out[i].FromDomain(scans[i]); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func pgScansToDomain(scans []PgScan) ([]domain.Scan, error) {
	out := make([]domain.Scan, 0, len(scans))
	for _, scan := range scans {
		d, err := scan.ToDomain()
		if err != nil {
			return nil, err
		}

		out = append(out, *d)
	}

	return out, nil
}
