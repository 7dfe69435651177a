// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustd.
//
// go-trustd is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordCommand(t *testing.T) {
	Enable()

	CommandsTotal.Reset()
	CommandDuration.Reset()

	RecordCommand("ISVALID", StatusSuccess, 0.01)

	count := testutil.CollectAndCount(CommandsTotal)
	if count != 1 {
		t.Errorf("Expected 1 command recorded, got %d", count)
	}
	histCount := testutil.CollectAndCount(CommandDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", histCount)
	}

	RecordCommand("LOOKUP", StatusError, 0.2)

	count = testutil.CollectAndCount(CommandsTotal)
	if count != 2 {
		t.Errorf("Expected 2 commands recorded, got %d", count)
	}
}

func TestRecordCommandWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	CommandsTotal.Reset()

	RecordCommand("ISVALID", StatusSuccess, 0.01)

	count := testutil.CollectAndCount(CommandsTotal)
	if count != 0 {
		t.Errorf("Expected 0 commands when disabled, got %d", count)
	}
}

func TestRecordInquiry(t *testing.T) {
	Enable()

	InquiriesTotal.Reset()

	RecordInquiry("SENDCERT")
	RecordInquiry("TARGETCERT")

	count := testutil.CollectAndCount(InquiriesTotal)
	if count != 2 {
		t.Errorf("Expected 2 inquiry keywords recorded, got %d", count)
	}
}

func TestSessionGauges(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(ActiveSessions)
	SessionStarted()
	if got := testutil.ToFloat64(ActiveSessions); got != before+1 {
		t.Errorf("Expected active sessions %v, got %v", before+1, got)
	}
	SessionEnded()
	if got := testutil.ToFloat64(ActiveSessions); got != before {
		t.Errorf("Expected active sessions %v, got %v", before, got)
	}
}

func TestCacheGauges(t *testing.T) {
	Enable()

	SetCachedCRLs(3)
	if got := testutil.ToFloat64(CachedCRLs); got != 3 {
		t.Errorf("Expected 3 cached CRLs, got %v", got)
	}
	SetCachedCerts(7)
	if got := testutil.ToFloat64(CachedCerts); got != 7 {
		t.Errorf("Expected 7 cached certs, got %v", got)
	}
}

func TestRecordCRLFetch(t *testing.T) {
	Enable()

	CRLFetchesTotal.Reset()

	RecordCRLFetch("url", StatusSuccess)
	RecordCRLFetch("distribution_point", StatusError)

	count := testutil.CollectAndCount(CRLFetchesTotal)
	if count != 2 {
		t.Errorf("Expected 2 fetch outcomes recorded, got %d", count)
	}
}
