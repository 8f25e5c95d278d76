package api

import (
	"bytes"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/julianstephens/beaver/internal/completion"
	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/importer"
	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/utils"
)

const defaultCompletionLimit = 10

type tickRequest struct {
	Date    string  `json:"date"`
	Done    *bool   `json:"done"`
	Skipped bool    `json:"skipped"`
	Text    *string `json:"text"`
	DateFmt string  `json:"date_fmt"`
}

type batchItem struct {
	Date string `json:"date"`
	Done bool   `json:"done"`
}

type batchRequest struct {
	DateFmt     string      `json:"date_fmt"`
	Completions []batchItem `json:"completions"`
}

func dateFormat(format string) string {
	if strings.TrimSpace(format) == "" {
		return constants.APIDateFormat
	}
	return format
}

func parseDay(value, format string) (utils.Date, error) {
	d, err := utils.ParseDateFormat(value, format)
	if err != nil {
		return utils.Date{}, beavererrors.Validation("date", "%v", err)
	}
	return d, nil
}

// queryStates collects status and status[] query values; DONE when none.
func queryStates(c *fiber.Ctx) (map[completion.State]bool, error) {
	args := c.Context().QueryArgs()
	var raw []string
	for _, key := range []string{"status", "status[]"} {
		for _, v := range args.PeekMulti(key) {
			for _, part := range strings.Split(string(v), ",") {
				if part = strings.TrimSpace(part); part != "" {
					raw = append(raw, part)
				}
			}
		}
	}

	want := make(map[completion.State]bool)
	if len(raw) == 0 {
		want[completion.Done] = true
		return want, nil
	}
	for _, s := range raw {
		state, err := completion.ParseState(s)
		if err != nil {
			return nil, beavererrors.Validation("status", "%v", err)
		}
		want[state] = true
	}
	return want, nil
}

func (s *Server) getCompletions(c *fiber.Ctx) error {
	format := dateFormat(c.Query("date_fmt"))

	sortOrder := c.Query("sort", "asc")
	if sortOrder != "asc" && sortOrder != "desc" {
		return beavererrors.Validation("sort", "invalid sort value %q (expected asc or desc)", sortOrder)
	}
	limit := defaultCompletionLimit
	if q := c.Query("limit"); q != "" {
		limit = c.QueryInt("limit", -1)
		if limit < 0 {
			return beavererrors.Validation("limit", "invalid limit %q", q)
		}
	}
	want, err := queryStates(c)
	if err != nil {
		return err
	}

	rawStart, rawEnd := c.Query("date_start"), c.Query("date_end")
	if (rawStart == "") != (rawEnd == "") {
		return beavererrors.Validation("date_start", "both date_start and date_end are required")
	}

	list, h, err := s.habit(c)
	if err != nil {
		return err
	}

	firstDay := list.Settings().WeekStart(s.cfg.FirstDayOfWeek)
	var start, end utils.Date
	if rawStart != "" {
		if start, err = parseDay(rawStart, format); err != nil {
			return err
		}
		if end, err = parseDay(rawEnd, format); err != nil {
			return err
		}
	} else {
		var ok bool
		start, end, ok = completion.QuerySpan(h.Records(), h.Period(), firstDay)
		if !ok {
			return c.JSON([]string{})
		}
	}

	states := s.engine.HabitDateCompletion(h, start, end, firstDay)
	days := completion.Filter(states, start, end, want, sortOrder == "desc", limit)

	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.Format(format))
	}
	return c.JSON(out)
}

func (s *Server) postCompletion(c *fiber.Ctx) error {
	var req tickRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Done == nil && !req.Skipped {
		return beavererrors.Validation("done", "done is required")
	}
	format := dateFormat(req.DateFmt)
	day, err := parseDay(req.Date, format)
	if err != nil {
		return err
	}

	_, h, err := s.habit(c)
	if err != nil {
		return err
	}

	state := models.CheckedNotDone
	switch {
	case req.Skipped:
		state = models.CheckedSkipped
	case *req.Done:
		state = models.CheckedDone
	}
	rec, err := h.Tick(day, state, req.Text)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"day":     day.Format(format),
		"done":    rec.IsDone(),
		"skipped": rec.IsSkipped(),
		"text":    rec.Text,
	})
}

// postBatchCompletions parses every date before the first tick, so a bad
// date applies nothing.
func (s *Server) postBatchCompletions(c *fiber.Ctx) error {
	var req batchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	format := dateFormat(req.DateFmt)

	days := make([]utils.Date, len(req.Completions))
	for i, item := range req.Completions {
		day, err := parseDay(item.Date, format)
		if err != nil {
			return err
		}
		days[i] = day
	}

	_, h, err := s.habit(c)
	if err != nil {
		return err
	}

	updated := make([]batchItem, 0, len(req.Completions))
	for i, item := range req.Completions {
		state := models.CheckedNotDone
		if item.Done {
			state = models.CheckedDone
		}
		if _, err := h.Tick(days[i], state, nil); err != nil {
			return err
		}
		updated = append(updated, item)
	}
	return c.JSON(fiber.Map{"habit_id": h.ID(), "updated": updated})
}

func (s *Server) export(c *fiber.Ctx) error {
	format, err := importer.ParseFormat(c.Query("format", string(importer.FormatJSON)))
	if err != nil {
		return err
	}
	list, err := s.habitList(c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := importer.Export(&buf, list, format); err != nil {
		return err
	}
	if format == importer.FormatCSV {
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="beaver.csv"`)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	}
	return c.Send(buf.Bytes())
}

// importList merges a JSON or CSV document into the user's list. Habits
// are matched by name.
func (s *Server) importList(c *fiber.Ctx) error {
	format := importer.FormatJSON
	if q := c.Query("format"); q != "" {
		parsed, err := importer.ParseFormat(q)
		if err != nil {
			return err
		}
		format = parsed
	} else if strings.HasPrefix(c.Get(fiber.HeaderContentType), "text/csv") {
		format = importer.FormatCSV
	}

	incoming, err := importer.Parse(bytes.NewReader(c.Body()), format)
	if err != nil {
		return err
	}

	ctx, user := c.UserContext(), currentUser(c)
	current, err := s.habitListOrInit(c)
	if err != nil {
		return err
	}
	merged, err := s.provider.MergeUserHabitList(ctx, user, incoming.AlignNames(current))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"imported": incoming.Len(), "habits": merged.Len()})
}
