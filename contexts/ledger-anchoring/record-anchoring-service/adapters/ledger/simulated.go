package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
)

// Simulated is an in-process ledger for local runs. A submission becomes
// confirmed on the ConfirmAfter-th status poll.
type Simulated struct {
	ConfirmAfter int
	Logger       *slog.Logger

	mu          sync.Mutex
	submissions map[string]int
}

func NewSimulated(confirmAfter int, logger *slog.Logger) *Simulated {
	if confirmAfter <= 0 {
		confirmAfter = 1
	}
	return &Simulated{
		ConfirmAfter: confirmAfter,
		Logger:       logger,
		submissions:  make(map[string]int),
	}
}

// Submit is idempotent per (record, digest): resubmitting returns the same
// signature id and does not reset confirmation progress.
func (s *Simulated) Submit(ctx context.Context, req ports.SubmitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domainerrors.ErrLedgerRetryable, err)
	}
	if len(req.Digest) == 0 || len(req.Signature) == 0 {
		return "", fmt.Errorf("%w: digest and signature are required", domainerrors.ErrLedgerFatal)
	}

	sum := sha256.Sum256(append([]byte(req.RecordID+"|"), req.Digest...))
	signatureID := "sim-" + hex.EncodeToString(sum[:16])

	s.mu.Lock()
	if s.submissions == nil {
		s.submissions = make(map[string]int)
	}
	if _, exists := s.submissions[signatureID]; !exists {
		s.submissions[signatureID] = 0
	}
	s.mu.Unlock()

	application.ResolveLogger(s.Logger).Debug("simulated ledger accepted submission",
		"event", "simulated_ledger_submit",
		"module", application.ModuleName,
		"layer", "adapter",
		"record_id", req.RecordID,
		"ledger_signature", signatureID,
	)
	return signatureID, nil
}

func (s *Simulated) CheckConfirmation(ctx context.Context, signatureID string) (services.ConfirmationState, error) {
	if err := ctx.Err(); err != nil {
		return services.ConfirmationUnknown, err
	}
	if signatureID == "" {
		return services.ConfirmationUnknown, errors.New("signature id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	polls, ok := s.submissions[signatureID]
	if !ok {
		return services.ConfirmationUnknown, nil
	}
	polls++
	s.submissions[signatureID] = polls
	if polls >= s.ConfirmAfter {
		return services.ConfirmationConfirmed, nil
	}
	return services.ConfirmationPending, nil
}
