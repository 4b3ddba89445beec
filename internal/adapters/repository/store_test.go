package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/studypulse/internal/adapters/repository"
	"github.com/okian/studypulse/internal/domain/model"
)

func sampleStudies() []model.Study {
	return []model.Study{
		{
			ID:    "s-beta",
			Title: "Beta",
			Code:  "B-1",
			Artifacts: []model.Artifact{
				{ID: "a-1", Name: "Layout A"},
				{ID: "a-2", Name: "Layout B"},
			},
			Participants: []model.Participant{
				{
					ID: "p-1", Name: "Ana", JoinedAt: "2025-03-01T00:00:00Z", Progress: 40,
					Ratings: []model.RatingEvent{
						{EventID: "e-1", ArtifactID: "a-1", Rating: 4, SubmittedAt: "2025-03-02T10:00:00Z"},
					},
				},
				{ID: "p-2", Name: "Ben", JoinedAt: "2025-03-01T00:00:00Z", Ratings: []model.RatingEvent{}},
			},
		},
		{ID: "s-alpha", Title: "Alpha", Code: "A-1", Participants: []model.Participant{}},
	}
}

// storeContract exercises the behaviour every backend must share.
// newStore must return an empty store.
func storeContract(t *testing.T, newStore func() repository.Store) {
	ctx := context.Background()

	Convey("Given a seeded store", t, func() {
		store := newStore()
		Reset(func() { _ = store.Close() })

		added, err := store.Seed(ctx, sampleStudies())
		So(err, ShouldBeNil)
		So(added, ShouldEqual, 2)

		Convey("Then seeding again adds nothing", func() {
			added, err := store.Seed(ctx, sampleStudies())
			So(err, ShouldBeNil)
			So(added, ShouldEqual, 0)
			So(store.Count(ctx), ShouldEqual, 2)
		})

		Convey("Then List is ordered by id", func() {
			refs, err := store.List(ctx)
			So(err, ShouldBeNil)
			So(refs, ShouldResemble, []model.StudyRef{
				{ID: "s-alpha", Title: "Alpha", Code: "A-1"},
				{ID: "s-beta", Title: "Beta", Code: "B-1"},
			})
		})

		Convey("Then Get returns the full snapshot in order", func() {
			st, err := store.Get(ctx, "s-beta")
			So(err, ShouldBeNil)
			So(st.Artifacts, ShouldHaveLength, 2)
			So(st.Artifacts[0].ID, ShouldEqual, "a-1")
			So(st.Participants, ShouldHaveLength, 2)
			So(st.Participants[0].ID, ShouldEqual, "p-1")
			So(st.Participants[0].Progress, ShouldEqual, 40.0)
			So(st.Participants[0].Ratings, ShouldHaveLength, 1)
			So(st.Participants[0].Ratings[0].SubmittedAt, ShouldEqual, "2025-03-02T10:00:00Z")
		})

		Convey("Then unknown studies are not found", func() {
			_, err := store.Get(ctx, "nope")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a rating is appended", func() {
			ev := model.RatingEvent{EventID: "e-2", ArtifactID: "a-2", Rating: 5, SubmittedAt: "2025-03-03T09:00:00Z"}
			So(store.AppendRating(ctx, "s-beta", "p-2", ev), ShouldBeNil)

			Convey("Then the next snapshot includes it", func() {
				st, err := store.Get(ctx, "s-beta")
				So(err, ShouldBeNil)
				So(st.Participant("p-2").Ratings, ShouldResemble, []model.RatingEvent{ev})
			})

			Convey("Then the same event id is a duplicate", func() {
				err := store.AppendRating(ctx, "s-beta", "p-2", ev)
				So(errors.Is(err, repository.ErrDuplicateEvent), ShouldBeTrue)
			})
		})

		Convey("When appending to unknown targets", func() {
			ev := model.RatingEvent{EventID: "e-x", ArtifactID: "a-1", Rating: 3}
			errStudy := store.AppendRating(ctx, "nope", "p-1", ev)
			errPerson := store.AppendRating(ctx, "s-beta", "ghost", ev)

			Convey("Then both are not found", func() {
				So(errors.Is(errStudy, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errPerson, repository.ErrNotFound), ShouldBeTrue)
				So(errPerson.Error(), ShouldContainSubstring, "ghost")
			})
		})

		Convey("When a participant completes twice", func() {
			So(store.MarkCompleted(ctx, "s-beta", "p-1", "2025-03-05T12:00:00Z"), ShouldBeNil)
			So(store.MarkCompleted(ctx, "s-beta", "p-1", "2025-03-09T12:00:00Z"), ShouldBeNil)

			Convey("Then the first completion wins and progress is full", func() {
				st, err := store.Get(ctx, "s-beta")
				So(err, ShouldBeNil)
				p := st.Participant("p-1")
				So(p.CompletedAt, ShouldEqual, "2025-03-05T12:00:00Z")
				So(p.Progress, ShouldEqual, 100.0)
			})
		})

		Convey("When completing an unknown participant", func() {
			err := store.MarkCompleted(ctx, "s-beta", "ghost", "2025-03-05T12:00:00Z")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When many writers append concurrently", func() {
			const writers = 20
			var wg sync.WaitGroup
			errs := make([]error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					errs[n] = store.AppendRating(ctx, "s-beta", "p-2", model.RatingEvent{
						EventID:     fmt.Sprintf("c-%d", n),
						ArtifactID:  "a-1",
						Rating:      3,
						SubmittedAt: "2025-03-04T00:00:00Z",
					})
				}(i)
			}
			wg.Wait()

			Convey("Then no rating is lost", func() {
				for _, err := range errs {
					So(err, ShouldBeNil)
				}
				st, err := store.Get(ctx, "s-beta")
				So(err, ShouldBeNil)
				So(st.Participant("p-2").Ratings, ShouldHaveLength, writers)
			})
		})

		Convey("When a caller mutates a snapshot", func() {
			st, err := store.Get(ctx, "s-beta")
			So(err, ShouldBeNil)
			st.Participants[0].Ratings[0].Rating = 1
			st.Participants[0].Name = "changed"

			Convey("Then the stored study is unaffected", func() {
				again, err := store.Get(ctx, "s-beta")
				So(err, ShouldBeNil)
				So(again.Participants[0].Ratings[0].Rating, ShouldEqual, 4.0)
				So(again.Participants[0].Name, ShouldEqual, "Ana")
			})
		})
	})
}
