package handler

import (
	"errors"

	"overlay-core/internal/service/estimator"
	"overlay-core/internal/service/ledger"
	"overlay-core/internal/service/pipeline"
	"overlay-core/pkg/errno"
)

// toErrno 把 pipeline 的错误归类为对外的错误码
func toErrno(err error) errno.Errno {
	var (
		rejected     *pipeline.UserRejectedError
		submission   *pipeline.SubmissionError
		registration *pipeline.RegistrationError
		invariant    *ledger.InvariantError
		revert       *estimator.RevertError
		inconsistent *estimator.InconsistentEstimationError
		estimation   *estimator.EstimationError
	)
	switch {
	case errors.As(err, &rejected):
		return errno.ErrRejected
	case errors.As(err, &registration):
		return errno.ErrLedgerRegistration
	case errors.As(err, &invariant):
		return errno.ErrLedgerInvariant
	case errors.As(err, &submission):
		return errno.ErrSubmission.WithMessage(err.Error())
	case errors.As(err, &revert), errors.As(err, &inconsistent), errors.As(err, &estimation),
		errors.Is(err, estimator.ErrNoOutcomes):
		return errno.ErrEstimation.WithMessage(err.Error())
	default:
		return errno.InternalServerError.WithMessage(err.Error())
	}
}
