//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffStrategies(t *testing.T) {
	exp := &ExponentialBackoff{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, exp.Delay(0))
	assert.Equal(t, 400*time.Millisecond, exp.Delay(2))
	assert.Equal(t, time.Second, exp.Delay(10))

	assert.Equal(t, 3*time.Second, (&FixedBackoff{FixedDelay: 3 * time.Second}).Delay(7))
	assert.Zero(t, (&NoBackoff{}).Delay(3))
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var retried []int
	cfg := Config{
		MaxRetries: 3,
		Strategy:   &NoBackoff{},
		OnRetry:    func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) },
	}

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), Config{MaxRetries: 2}, func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_NotRetryable(t *testing.T) {
	calls := 0
	denied := errors.New("access denied")
	cfg := Config{MaxRetries: 5, Retryable: func(err error) bool { return !errors.Is(err, denied) }}

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return denied
	})
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 1, calls)

	calls = 0
	err = Do(context.Background(), Config{MaxRetries: 5}, func(ctx context.Context) error {
		calls++
		return Permanent(denied)
	})
	assert.Equal(t, denied, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := Config{MaxRetries: 5, Strategy: &FixedBackoff{FixedDelay: time.Hour}}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		return errors.New("unavailable")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Equal(t, 1, calls)
}
