package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/disgoorg/disgo/rest"
	"github.com/robalyx/guardian/internal/directory"
)

// Classify maps a disgo error onto the directory error kinds.
// Errors that fit no kind are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var restErr *rest.Error
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch status := restErr.Response.StatusCode; {
		case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", directory.ErrTransient, err)
		case status == http.StatusForbidden || status == http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", directory.ErrPermission, err)
		case status == http.StatusNotFound:
			return fmt.Errorf("%w: %w", directory.ErrNotFound, err)
		}

		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", directory.ErrTransient, err)
	}

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %w", directory.ErrMalformed, err)
	}

	return err
}
