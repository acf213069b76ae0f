// Package voucherstore manages the e-voucher code pool.
//
// A code is its own document ID in voucher_pool, so the pool can never hold
// the same code twice regardless of backend.
package voucherstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/inputval"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
)

const maxCodeLen = 64

type Store struct {
	b   docstore.Backend
	now func() time.Time
}

func New(b docstore.Backend) *Store {
	return &Store{b: b, now: func() time.Time { return time.Now().UTC() }}
}

// ParseCodes splits comma or newline separated input into trimmed, non-empty
// codes. A code repeated within the input is a validation error.
func ParseCodes(raw string) ([]string, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '，' || r == '\n' || r == '\r'
	})
	seen := make(map[string]bool, len(fields))
	var codes []string
	for _, f := range fields {
		c := strings.TrimSpace(f)
		if c == "" {
			continue
		}
		if len(c) > maxCodeLen {
			return nil, inputval.New("codes", "券號 %s 過長", c)
		}
		if seen[c] {
			return nil, inputval.New("codes", "輸入中有重複的券號: %s", c)
		}
		seen[c] = true
		codes = append(codes, c)
	}
	if len(codes) == 0 {
		return nil, inputval.New("codes", "請輸入至少一組券號")
	}
	return codes, nil
}

// AddCodes adds every code in raw to the pool in one batch. Nothing is added
// when any code already exists.
func (s *Store) AddCodes(ctx context.Context, raw string) (int, error) {
	codes, err := ParseCodes(raw)
	if err != nil {
		return 0, err
	}
	var dups []string
	for _, c := range codes {
		if _, err := s.b.Get(ctx, models.CollVoucherPool, c); err == nil {
			dups = append(dups, c)
		} else if !errors.Is(err, docstore.ErrNotFound) {
			return 0, err
		}
	}
	if len(dups) > 0 {
		return 0, inputval.New("codes", "券號已存在: %s", strings.Join(dups, ", "))
	}

	now := s.now()
	ops := make([]docstore.Op, 0, len(codes))
	for _, c := range codes {
		ops = append(ops, docstore.Op{
			Kind:       docstore.OpInsert,
			Collection: models.CollVoucherPool,
			ID:         c,
			Data:       bson.M{"code": c, "is_used": false, "created_at": now},
		})
	}
	if err := s.b.Batch(ctx, ops); err != nil {
		if errors.Is(err, docstore.ErrDuplicate) {
			return 0, inputval.New("codes", "券號已存在")
		}
		return 0, fmt.Errorf("add voucher codes: %w", err)
	}
	return len(codes), nil
}

// List returns the whole pool, unused codes first then by code.
func (s *Store) List(ctx context.Context) ([]models.VoucherEntry, error) {
	docs, err := s.b.Find(ctx, models.CollVoucherPool, nil)
	if err != nil {
		return nil, err
	}
	out, err := docstore.DecodeAll[models.VoucherEntry](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsUsed != out[j].IsUsed {
			return !out[i].IsUsed
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// Available counts unused codes.
func (s *Store) Available(ctx context.Context) (int64, error) {
	return s.b.Count(ctx, models.CollVoucherPool, bson.M{"is_used": false})
}
