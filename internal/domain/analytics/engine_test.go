package analytics_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/studypulse/internal/domain/analytics"
	"github.com/okian/studypulse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2025, 3, 31, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// twoParticipantStudy: A completes on day 10 and rates 4 and 5 on day 3,
// B never completes and rates 3 on day 5.
func twoParticipantStudy() *model.Study {
	return &model.Study{
		ID:                    "study-1",
		Title:                 "Onboarding comparison",
		Code:                  "ONB-01",
		PrincipalInvestigator: "Dr. Rivera",
		StartDate:             "2025-03-01",
		EndDate:               "2025-04-30",
		Artifacts: []model.Artifact{
			{ID: "art-1", Name: "Wizard"},
			{ID: "art-2", Name: "Checklist"},
		},
		Participants: []model.Participant{
			{
				ID:          "A",
				Name:        "Alex",
				Region:      "EU",
				Persona:     "novice",
				JoinedAt:    "2025-03-01T00:00:00Z",
				Progress:    100,
				CompletedAt: "2025-03-10T12:00:00Z",
				Ratings: []model.RatingEvent{
					{ArtifactID: "art-1", Rating: 4, SubmittedAt: "2025-03-03T09:00:00Z"},
					{ArtifactID: "art-1", Rating: 5, SubmittedAt: "2025-03-03T17:30:00Z"},
				},
			},
			{
				ID:       "B",
				Name:     "Blair",
				Region:   "US",
				Persona:  "expert",
				JoinedAt: "2025-03-01T00:00:00Z",
				Progress: 40,
				Ratings: []model.RatingEvent{
					{ArtifactID: "art-2", Rating: 3, SubmittedAt: "2025-03-05T11:00:00Z"},
				},
			},
		},
	}
}

func TestEngine_ExampleScenario(t *testing.T) {
	Convey("Given the two participant study", t, func() {
		engine := analytics.NewEngine(analytics.WithClock(fixedClock))
		study := twoParticipantStudy()

		Convey("When querying day 1 through day 10", func() {
			resp, err := engine.Build(study, analytics.Query{From: "2025-03-01", To: "2025-03-10"})
			So(err, ShouldBeNil)

			Convey("Then the completion trend is 0 until day 10 and 50 on day 10", func() {
				So(resp.Charts.CompletionTrend, ShouldHaveLength, 10)
				for i := 0; i < 9; i++ {
					So(resp.Charts.CompletionTrend[i].Value, ShouldEqual, 0.0)
				}
				So(resp.Charts.CompletionTrend[9].Date, ShouldEqual, "2025-03-10")
				So(resp.Charts.CompletionTrend[9].Value, ShouldEqual, 50.0)
			})

			Convey("And the ratings trend carries per-day means with zero elsewhere", func() {
				So(resp.Charts.RatingsTrend, ShouldHaveLength, 10)
				for i, p := range resp.Charts.RatingsTrend {
					switch p.Date {
					case "2025-03-03":
						So(p.Value, ShouldEqual, 4.5)
					case "2025-03-05":
						So(p.Value, ShouldEqual, 3.0)
					default:
						So(p.Value, ShouldEqual, 0.0)
					}
					So(p.Date, ShouldEqual, resp.Charts.CompletionTrend[i].Date)
				}
			})

			Convey("And the summary block is consistent", func() {
				So(resp.Summary.AverageRating, ShouldEqual, 4.0)
				So(resp.Summary.CompletionPercentage, ShouldEqual, 50)
				So(resp.Summary.SubmissionsCount, ShouldEqual, 3)
				So(resp.Summary.ActiveParticipants, ShouldEqual, 2)
				So(resp.Summary.CompletedParticipants, ShouldEqual, 1)
				So(resp.Summary.RefreshIntervalSeconds, ShouldEqual, analytics.DefaultRefreshIntervalSeconds)
				So(resp.Summary.LastUpdated, ShouldEqual, "2025-03-31T15:00:00.000Z")
			})

			Convey("And artifact averages are in first-seen order", func() {
				So(resp.Charts.ArtifactAverages, ShouldResemble, []analytics.ArtifactAverage{
					{ArtifactID: "art-1", Name: "Wizard", AverageRating: 4.5, Submissions: 2},
					{ArtifactID: "art-2", Name: "Checklist", AverageRating: 3.0, Submissions: 1},
				})
			})

			Convey("And the filters echo the resolved window", func() {
				So(resp.Filters.From, ShouldEqual, "2025-03-01T00:00:00.000Z")
				So(resp.Filters.To, ShouldEqual, "2025-03-10T23:59:59.999Z")
				So(resp.Filters.ParticipantID, ShouldEqual, "all")
			})

			Convey("And study metadata and options are carried over", func() {
				So(resp.Study.ID, ShouldEqual, "study-1")
				So(resp.Study.PrincipalInvestigator, ShouldEqual, "Dr. Rivera")
				So(resp.ParticipantOptions, ShouldResemble, []analytics.ParticipantOption{
					{ID: "A", Name: "Alex", Region: "EU"},
					{ID: "B", Name: "Blair", Region: "US"},
				})
				So(resp.Exportable, ShouldBeTrue)
			})
		})
	})
}

func TestEngine_ParticipantSummaries(t *testing.T) {
	Convey("Given a study with a silent participant", t, func() {
		study := twoParticipantStudy()
		study.Participants = append(study.Participants, model.Participant{
			ID: "C", Name: "Casey", JoinedAt: "2025-03-02T08:00:00Z", Progress: 40,
		})
		engine := analytics.NewEngine(analytics.WithClock(fixedClock))

		resp, err := engine.Build(study, analytics.Query{From: "2025-03-01", To: "2025-03-10"})
		So(err, ShouldBeNil)

		Convey("Then summaries are sorted by progress with ties in input order", func() {
			So(resp.Participants, ShouldHaveLength, 3)
			So(resp.Participants[0].ID, ShouldEqual, "A")
			So(resp.Participants[1].ID, ShouldEqual, "B")
			So(resp.Participants[2].ID, ShouldEqual, "C")
		})

		Convey("And a participant without ratings has a null average and falls back to joinedAt", func() {
			c := resp.Participants[2]
			So(c.AverageRating, ShouldBeNil)
			So(c.LastSubmissionAt, ShouldEqual, "2025-03-02T08:00:00Z")
			So(c.CompletionStatus, ShouldEqual, analytics.StatusInProgress)
		})

		Convey("And the latest in-window submission is reported", func() {
			a := resp.Participants[0]
			So(a.AverageRating, ShouldNotBeNil)
			So(*a.AverageRating, ShouldEqual, 4.5)
			So(a.LastSubmissionAt, ShouldEqual, "2025-03-03T17:30:00Z")
			So(a.CompletionStatus, ShouldEqual, analytics.StatusCompleted)
		})

		Convey("And the null average serializes as JSON null", func() {
			raw, err := json.Marshal(resp.Participants[2])
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"averageRating":null`)
		})
	})

	Convey("Given a completion outside the window", t, func() {
		study := twoParticipantStudy()
		engine := analytics.NewEngine(analytics.WithClock(fixedClock))

		resp, err := engine.Build(study, analytics.Query{From: "2025-03-01", To: "2025-03-05"})
		So(err, ShouldBeNil)

		Convey("Then completionStatus still reports completed", func() {
			So(resp.Participants[0].CompletionStatus, ShouldEqual, analytics.StatusCompleted)
		})

		Convey("But the completion trend does not count it", func() {
			last := resp.Charts.CompletionTrend[len(resp.Charts.CompletionTrend)-1]
			So(last.Value, ShouldEqual, 0.0)
		})
	})
}

func TestEngine_EmptyRoster(t *testing.T) {
	Convey("Given a participant filter that matches nobody", t, func() {
		engine := analytics.NewEngine(analytics.WithClock(fixedClock), analytics.WithRefreshIntervalSeconds(45))
		study := twoParticipantStudy()

		resp, err := engine.Build(study, analytics.Query{From: "2025-03-01", To: "2025-03-10", ParticipantID: "ghost"})

		Convey("Then a complete zeroed response is returned", func() {
			So(err, ShouldBeNil)
			So(resp.Summary.AverageRating, ShouldEqual, 0.0)
			So(resp.Summary.CompletionPercentage, ShouldEqual, 0)
			So(resp.Summary.SubmissionsCount, ShouldEqual, 0)
			So(resp.Summary.ActiveParticipants, ShouldEqual, 0)
			So(resp.Summary.CompletedParticipants, ShouldEqual, 0)
			So(resp.Summary.RefreshIntervalSeconds, ShouldEqual, 45)
			So(resp.Charts.RatingsTrend, ShouldBeEmpty)
			So(resp.Charts.CompletionTrend, ShouldBeEmpty)
			So(resp.Charts.ArtifactAverages, ShouldBeEmpty)
			So(resp.Participants, ShouldBeEmpty)
			So(resp.Exportable, ShouldBeTrue)
			So(resp.Filters.ParticipantID, ShouldEqual, "ghost")
		})

		Convey("And the unfiltered participant options are kept", func() {
			So(resp.ParticipantOptions, ShouldHaveLength, 2)
		})

		Convey("And arrays serialize as [] rather than null", func() {
			raw, err := json.Marshal(resp)
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"ratingsTrend":[]`)
			So(string(raw), ShouldContainSubstring, `"participants":[]`)
		})
	})

	Convey("Given everyone joined after the window end", t, func() {
		engine := analytics.NewEngine(analytics.WithClock(fixedClock))
		study := twoParticipantStudy()

		resp, err := engine.Build(study, analytics.Query{From: "2025-02-01", To: "2025-02-20"})

		Convey("Then the roster is empty and nothing fails", func() {
			So(err, ShouldBeNil)
			So(resp.Summary.ActiveParticipants, ShouldEqual, 0)
			So(resp.ParticipantOptions, ShouldHaveLength, 2)
		})
	})
}

func TestEngine_SingleParticipantFilter(t *testing.T) {
	Convey("Given a filter on participant B", t, func() {
		engine := analytics.NewEngine(analytics.WithClock(fixedClock))
		resp, err := engine.Build(twoParticipantStudy(), analytics.Query{From: "2025-03-01", To: "2025-03-10", ParticipantID: "B"})
		So(err, ShouldBeNil)

		Convey("Then only B's events are aggregated", func() {
			So(resp.Summary.ActiveParticipants, ShouldEqual, 1)
			So(resp.Summary.SubmissionsCount, ShouldEqual, 1)
			So(resp.Summary.AverageRating, ShouldEqual, 3.0)
			So(resp.Summary.CompletionPercentage, ShouldEqual, 0)
			So(resp.Charts.ArtifactAverages, ShouldHaveLength, 1)
			So(resp.Participants, ShouldHaveLength, 1)
		})

		Convey("And the options still list everybody", func() {
			So(resp.ParticipantOptions, ShouldHaveLength, 2)
		})
	})
}

func TestEngine_WindowValidation(t *testing.T) {
	Convey("Given an engine", t, func() {
		engine := analytics.NewEngine(analytics.WithClock(fixedClock))
		study := twoParticipantStudy()

		Convey("When from is after to", func() {
			_, err := engine.Build(study, analytics.Query{From: "2025-03-10", To: "2025-03-01"})
			So(errors.Is(err, analytics.ErrInvertedRange), ShouldBeTrue)
			So(errors.Is(err, analytics.ErrInvalidFilter), ShouldBeFalse)
		})

		Convey("When from is not a date", func() {
			_, err := engine.Build(study, analytics.Query{From: "not-a-date"})
			So(errors.Is(err, analytics.ErrInvalidFilter), ShouldBeTrue)
		})

		Convey("When to is not a date", func() {
			_, err := engine.Build(study, analytics.Query{To: "2025-13-45"})
			So(errors.Is(err, analytics.ErrInvalidFilter), ShouldBeTrue)
		})

		Convey("When the study is nil", func() {
			_, err := engine.Build(nil, analytics.Query{})
			So(errors.Is(err, analytics.ErrStudyMissing), ShouldBeTrue)
		})

		Convey("When no window is given", func() {
			resp, err := engine.Build(study, analytics.Query{})
			So(err, ShouldBeNil)

			Convey("Then it spans 30 days back from now, 31 calendar days", func() {
				So(resp.Filters.To, ShouldEqual, "2025-03-31T15:00:00.000Z")
				So(resp.Filters.From, ShouldEqual, "2025-03-01T15:00:00.000Z")
				So(resp.Charts.RatingsTrend, ShouldHaveLength, 31)
				So(resp.Charts.RatingsTrend[0].Date, ShouldEqual, "2025-03-01")
				So(resp.Charts.RatingsTrend[30].Date, ShouldEqual, "2025-03-31")
			})

			Convey("And all three ratings fall inside it", func() {
				So(resp.Summary.SubmissionsCount, ShouldEqual, 3)
			})
		})

		Convey("When only a date-only to is given", func() {
			edge := &model.Study{
				ID: "study-edge",
				Participants: []model.Participant{{
					ID:       "E",
					JoinedAt: "2025-02-01T00:00:00Z",
					Ratings: []model.RatingEvent{
						{ArtifactID: "art-1", Rating: 4, SubmittedAt: "2025-03-01T12:00:00Z"},
					},
				}},
			}
			resp, err := engine.Build(edge, analytics.Query{To: "2025-03-31"})
			So(err, ShouldBeNil)

			Convey("Then the first of the 31 days starts at midnight and counts its rating", func() {
				So(resp.Filters.From, ShouldEqual, "2025-03-01T00:00:00.000Z")
				So(resp.Filters.To, ShouldEqual, "2025-03-31T23:59:59.999Z")
				So(resp.Charts.RatingsTrend, ShouldHaveLength, 31)
				So(resp.Charts.RatingsTrend[0].Date, ShouldEqual, "2025-03-01")
				So(resp.Charts.RatingsTrend[0].Value, ShouldEqual, 4.0)
				So(resp.Summary.SubmissionsCount, ShouldEqual, 1)
			})
		})

		Convey("When the default window is configured", func() {
			short := analytics.NewEngine(analytics.WithClock(fixedClock), analytics.WithDefaultWindowDays(7))
			resp, err := short.Build(study, analytics.Query{})
			So(err, ShouldBeNil)
			So(resp.Charts.RatingsTrend, ShouldHaveLength, 8)
		})
	})
}

func TestEngine_WindowContainment(t *testing.T) {
	Convey("Given ratings just outside both window edges and malformed data", t, func() {
		study := twoParticipantStudy()
		study.Participants[1].Ratings = append(study.Participants[1].Ratings,
			model.RatingEvent{ArtifactID: "art-2", Rating: 1, SubmittedAt: "2025-02-28T23:59:59Z"},
			model.RatingEvent{ArtifactID: "art-2", Rating: 1, SubmittedAt: "2025-03-11T00:00:00Z"},
			model.RatingEvent{ArtifactID: "art-2", Rating: 1, SubmittedAt: "yesterday-ish"},
			model.RatingEvent{ArtifactID: "art-2", Rating: 2, SubmittedAt: "2025-03-01T00:00:00Z"},
		)
		engine := analytics.NewEngine(analytics.WithClock(fixedClock))

		resp, err := engine.Build(study, analytics.Query{From: "2025-03-01", To: "2025-03-10"})
		So(err, ShouldBeNil)

		Convey("Then only the inclusive edge event is added", func() {
			So(resp.Summary.SubmissionsCount, ShouldEqual, 4)
			So(resp.Charts.RatingsTrend[0].Value, ShouldEqual, 2.0)
		})

		Convey("And the malformed timestamp did not abort the aggregation", func() {
			So(resp.Summary.AverageRating, ShouldEqual, 3.5)
		})
	})
}

func TestEngine_Idempotence(t *testing.T) {
	Convey("Given identical inputs", t, func() {
		engine := analytics.NewEngine(analytics.WithClock(fixedClock))
		q := analytics.Query{From: "2025-03-01", To: "2025-03-10"}

		first, err := engine.Build(twoParticipantStudy(), q)
		So(err, ShouldBeNil)
		second, err := engine.Build(twoParticipantStudy(), q)
		So(err, ShouldBeNil)

		Convey("Then the serialized output is byte-identical", func() {
			a, _ := json.Marshal(first)
			b, _ := json.Marshal(second)
			So(string(a), ShouldEqual, string(b))
		})
	})

	Convey("Given a snapshot", t, func() {
		study := twoParticipantStudy()
		before, _ := json.Marshal(study)
		_, err := analytics.NewEngine(analytics.WithClock(fixedClock)).Build(study, analytics.Query{})
		So(err, ShouldBeNil)

		Convey("Then Build leaves it untouched", func() {
			after, _ := json.Marshal(study)
			So(string(after), ShouldEqual, string(before))
		})
	})
}

func TestEngine_CompletionMonotonic(t *testing.T) {
	Convey("Given many staggered completions", t, func() {
		study := &model.Study{ID: "s"}
		base := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
		for i := 0; i < 12; i++ {
			p := model.Participant{
				ID:       string(rune('a' + i)),
				JoinedAt: base.Format(time.RFC3339),
			}
			if i%3 != 0 {
				p.CompletedAt = base.Add(time.Duration(i*37) * time.Hour).Format(time.RFC3339)
			}
			study.Participants = append(study.Participants, p)
		}
		engine := analytics.NewEngine(analytics.WithClock(fixedClock))

		resp, err := engine.Build(study, analytics.Query{From: "2025-01-01", To: "2025-01-31"})
		So(err, ShouldBeNil)

		Convey("Then the completion series never decreases and never exceeds 100", func() {
			trend := resp.Charts.CompletionTrend
			So(trend, ShouldHaveLength, 31)
			for i := 0; i+1 < len(trend); i++ {
				So(trend[i].Value, ShouldBeLessThanOrEqualTo, trend[i+1].Value)
			}
			So(trend[len(trend)-1].Value, ShouldBeLessThanOrEqualTo, 100.0)
			So(trend[len(trend)-1].Value, ShouldEqual, float64(resp.Summary.CompletionPercentage))
		})
	})
}

func TestEngine_ArtifactAverageRounding(t *testing.T) {
	Convey("Given ratings 1, 2 and 2 on one artifact", t, func() {
		study := &model.Study{
			ID:        "s",
			Artifacts: []model.Artifact{{ID: "x", Name: "X"}},
			Participants: []model.Participant{{
				ID:       "p",
				JoinedAt: "2025-01-01",
				Ratings: []model.RatingEvent{
					{ArtifactID: "x", Rating: 1, SubmittedAt: "2025-01-02T00:00:00Z"},
					{ArtifactID: "x", Rating: 2, SubmittedAt: "2025-01-02T00:00:00Z"},
					{ArtifactID: "x", Rating: 2, SubmittedAt: "2025-01-03T00:00:00Z"},
				},
			}},
		}
		resp, err := analytics.NewEngine(analytics.WithClock(fixedClock)).Build(study, analytics.Query{From: "2025-01-01", To: "2025-01-05"})
		So(err, ShouldBeNil)

		Convey("Then the average is rounded to two decimals", func() {
			So(resp.Charts.ArtifactAverages[0].AverageRating, ShouldEqual, 1.67)
			So(resp.Charts.ArtifactAverages[0].Submissions, ShouldEqual, 3)
			So(resp.Summary.AverageRating, ShouldEqual, 1.67)
		})
	})
}
