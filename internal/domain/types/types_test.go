package types_test

import (
	"errors"
	"fmt"
	"testing"

	types "github.com/okian/platecount/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrors(t *testing.T) {
	Convey("Given the service error kinds", t, func() {
		all := []error{
			types.ErrNotStarted, types.ErrNoFile, types.ErrNoFilename, types.ErrUnsupportedType,
			types.ErrTooLarge, types.ErrBackpressure, types.ErrJobNotFound, types.ErrNotCompleted,
			types.ErrOutputNotFound, types.ErrStreamsUnsupported, types.ErrInvalidStreamURL,
		}

		Convey("Then each is distinct", func() {
			for i, a := range all {
				for j, b := range all {
					So(errors.Is(a, b), ShouldEqual, i == j)
				}
			}
		})

		Convey("And each survives wrapping", func() {
			for _, kind := range all {
				So(errors.Is(fmt.Errorf("upload: %w", kind), kind), ShouldBeTrue)
			}
		})
	})
}

func TestSubmitResult(t *testing.T) {
	Convey("A zero submit result is not a duplicate", t, func() {
		var r types.SubmitResult
		So(r.Duplicate, ShouldBeFalse)
		So(r.JobID, ShouldBeEmpty)
	})
}
