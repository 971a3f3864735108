package dedupe_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	dedupe "github.com/okian/platecount/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("It starts empty", func() {
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("When an upload is new", func() {
			id, seen := d.SeenAndRecord(ctx, "digest-1", "job-1")

			Convey("Then it is recorded under the given job", func() {
				So(seen, ShouldBeFalse)
				So(id, ShouldEqual, "job-1")
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the same upload arrives again", func() {
			d.SeenAndRecord(ctx, "digest-1", "job-1")
			id, seen := d.SeenAndRecord(ctx, "digest-1", "job-2")

			Convey("Then the first job is returned", func() {
				So(seen, ShouldBeTrue)
				So(id, ShouldEqual, "job-1")
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When an upload is unrecorded", func() {
			d.SeenAndRecord(ctx, "digest-1", "job-1")
			d.Unrecord(ctx, "digest-1")
			d.Unrecord(ctx, "missing")

			Convey("Then it can be submitted again", func() {
				So(d.Size(), ShouldEqual, 0)
				id, seen := d.SeenAndRecord(ctx, "digest-1", "job-3")
				So(seen, ShouldBeFalse)
				So(id, ShouldEqual, "job-3")
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 3; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("d%d", i), fmt.Sprintf("j%d", i))
		}

		Convey("When it is at capacity and a new upload arrives", func() {
			d.SeenAndRecord(ctx, "d4", "j4")

			Convey("Then the oldest entry is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				_, seen := d.SeenAndRecord(ctx, "d1", "j5")
				So(seen, ShouldBeFalse)
				_, seen = d.SeenAndRecord(ctx, "d4", "j6")
				So(seen, ShouldBeTrue)
			})
		})

		Convey("When a middle entry is unrecorded", func() {
			d.Unrecord(ctx, "d2")
			d.SeenAndRecord(ctx, "d4", "j4")

			Convey("Then no eviction is needed", func() {
				So(d.Size(), ShouldEqual, 3)
				_, seen := d.SeenAndRecord(ctx, "d1", "x")
				So(seen, ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("d%d", i), "j")
		}
		So(d.Size(), ShouldEqual, 1000)
	})

	Convey("Given concurrent submissions of the same upload", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, seen := d.SeenAndRecord(ctx, "same", fmt.Sprintf("j%d", i)); !seen {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one becomes a job", func() {
			So(fresh, ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})
}

func TestDigest(t *testing.T) {
	Convey("Given file contents", t, func() {
		a, err := dedupe.Digest(strings.NewReader("frame bytes"))
		So(err, ShouldBeNil)
		b, _ := dedupe.Digest(strings.NewReader("frame bytes"))
		c, _ := dedupe.Digest(strings.NewReader("other bytes"))

		So(a, ShouldHaveLength, 64)
		So(a, ShouldEqual, b)
		So(a, ShouldNotEqual, c)
	})
}
