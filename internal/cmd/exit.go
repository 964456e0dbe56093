package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	errwrap "github.com/livetrack/livetrack/internal/errors"
)

// Replaced in tests.
var (
	osExit             = os.Exit
	fatalOut io.Writer = os.Stderr
)

var exitCodesByError = map[string]foundry.ExitCode{
	errwrap.CodeConfigInvalid:      foundry.ExitConfigInvalid,
	errwrap.CodeSchemaMismatch:     foundry.ExitConfigInvalid,
	errwrap.CodeExternalService:    foundry.ExitExternalServiceUnavailable,
	errwrap.CodeServiceUnavailable: foundry.ExitExternalServiceUnavailable,
	errwrap.CodeNotFound:           foundry.ExitFileNotFound,
}

// ExitWithCode reports err with foundry exit code metadata and exits. A nil
// logger writes a plain FATAL line to stderr instead.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(fatalOut, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		osExit(int(exitCode))
		return
	}

	if logger == nil {
		writeFatal(fatalOut, msg, err)
		fmt.Fprintf(fatalOut, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	} else {
		logger.Error(msg, exitFields(info.Code, info.Name, info.Category, err)...)
	}
	osExit(info.Code)
}

// ExitWithCodeStderr is ExitWithCode for failures before logging exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	ExitWithCode(nil, exitCode, msg, err)
}

// ExitCodeFor maps an error returned by a command onto a foundry exit code.
func ExitCodeFor(err error) foundry.ExitCode {
	var envelope *errors.ErrorEnvelope
	if !stderrors.As(err, &envelope) || envelope == nil {
		return foundry.ExitFailure
	}
	if code, ok := exitCodesByError[envelope.Code]; ok {
		return code
	}
	return foundry.ExitFailure
}

func exitFields(code int, name, category string, err error) []zap.Field {
	fields := []zap.Field{
		zap.Int("exit_code", code),
		zap.String("exit_name", name),
		zap.String("exit_category", category),
	}
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Details != nil {
			fields = append(fields, zap.Any("error_details", envelope.Details))
		}
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		if original, ok := envelope.Original.(error); ok {
			err = original
		}
	}
	return append(fields, zap.Error(err))
}

func writeFatal(w io.Writer, msg string, err error) {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		fmt.Fprintf(w, "FATAL: %s\n", msg)
	case stderrors.As(err, &envelope) && envelope != nil:
		fmt.Fprintf(w, "FATAL: %s [%s]: %s (correlation: %s)\n", msg, envelope.Code, envelope.Message, envelope.CorrelationID)
		if original, ok := envelope.Original.(error); ok {
			fmt.Fprintf(w, "Underlying error: %v\n", original)
		}
	default:
		fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	}
}
