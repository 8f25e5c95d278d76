package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/models"
)

type habitSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type habitDetail struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Star       bool                   `json:"star"`
	Status     constants.HabitStatus  `json:"status"`
	WeeklyGoal int                    `json:"weekly_goal"`
	ListID     *string                `json:"list_id"`
	Tags       []string               `json:"tags"`
	Period     *models.HabitFrequency `json:"period"`
	Records    []models.Record        `json:"records"`
}

func newHabitDetail(h *models.Habit) habitDetail {
	d := habitDetail{
		ID:         h.ID(),
		Name:       h.Name(),
		Star:       h.Star(),
		Status:     h.Status(),
		WeeklyGoal: h.WeeklyGoal(),
		ListID:     h.ListID(),
		Tags:       h.Tags(),
		Period:     h.Period(),
		Records:    h.Records(),
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	if d.Records == nil {
		d.Records = []models.Record{}
	}
	return d
}

type createHabitRequest struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// updateHabitRequest is a partial update; absent fields are left alone.
type updateHabitRequest struct {
	Name       *string         `json:"name"`
	Star       *bool           `json:"star"`
	Status     *string         `json:"status"`
	Period     json.RawMessage `json:"period"`
	Tags       *[]string       `json:"tags"`
	WeeklyGoal *int            `json:"weekly_goal"`
}

type metaRequest struct {
	Order *[]string `json:"order"`
}

// habitList returns the live list of the current user.
func (s *Server) habitList(c *fiber.Ctx) (*models.HabitList, error) {
	return s.provider.GetUserHabitList(c.UserContext(), currentUser(c))
}

// habitListOrInit is habitList, creating an empty list for a new user.
func (s *Server) habitListOrInit(c *fiber.Ctx) (*models.HabitList, error) {
	list, err := s.habitList(c)
	if err == nil || !errors.Is(err, beavererrors.ErrNotFound) {
		return list, err
	}
	list = models.NewHabitList()
	if err := s.provider.InitUserHabitList(c.UserContext(), currentUser(c), list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Server) habit(c *fiber.Ctx) (*models.HabitList, *models.Habit, error) {
	list, err := s.habitList(c)
	if err != nil {
		return nil, nil, err
	}
	h, err := list.GetHabitBy(c.Params("id"))
	if err != nil {
		return nil, nil, err
	}
	return list, h, nil
}

func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return nil
}

func (s *Server) getHabitsMeta(c *fiber.Ctx) error {
	list, err := s.habitList(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"order": list.Order()})
}

func (s *Server) putHabitsMeta(c *fiber.Ctx) error {
	var req metaRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	list, err := s.habitList(c)
	if err != nil {
		return err
	}
	if req.Order != nil {
		list.SetOrder(*req.Order)
	}
	return c.JSON(fiber.Map{"order": list.Order()})
}

func (s *Server) listHabits(c *fiber.Ctx) error {
	status := constants.HabitStatusActive
	if q := c.Query("status"); q != "" {
		parsed, err := models.ParseStatus(q)
		if err != nil {
			return err
		}
		status = parsed
	}

	list, err := s.habitList(c)
	if err != nil {
		return err
	}
	habits := models.NewHabitListBuilder(list).Status(status).Build()
	out := make([]habitSummary, 0, len(habits))
	for _, h := range habits {
		out = append(out, habitSummary{ID: h.ID(), Name: h.Name()})
	}
	return c.JSON(out)
}

func (s *Server) createHabit(c *fiber.Ctx) error {
	var req createHabitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	name, err := models.ValidateHabitName(req.Name)
	if err != nil {
		return err
	}
	list, err := s.habitListOrInit(c)
	if err != nil {
		return err
	}
	id, err := list.Add(name, req.Tags...)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(habitSummary{ID: id, Name: name})
}

func (s *Server) getHabit(c *fiber.Ctx) error {
	_, h, err := s.habit(c)
	if err != nil {
		return err
	}
	return c.JSON(newHabitDetail(h))
}

func (s *Server) updateHabit(c *fiber.Ctx) error {
	var req updateHabitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	_, h, err := s.habit(c)
	if err != nil {
		return err
	}

	// Validate everything before touching the habit so a bad field
	// leaves it unchanged.
	var name string
	if req.Name != nil {
		if name, err = models.ValidateHabitName(*req.Name); err != nil {
			return err
		}
	}
	var status constants.HabitStatus
	if req.Status != nil {
		if status, err = models.ParseStatus(*req.Status); err != nil {
			return err
		}
	}
	var period *models.HabitFrequency
	if len(req.Period) > 0 {
		if period, err = models.DecodePeriod(req.Period); err != nil {
			return beavererrors.Validation("period", "%v", err)
		}
	}
	if req.WeeklyGoal != nil && (*req.WeeklyGoal < 0 || *req.WeeklyGoal > constants.MaxWeeklyGoal) {
		return beavererrors.Validation("weekly_goal", "must be between 0 and %d", constants.MaxWeeklyGoal)
	}

	if req.Name != nil {
		if err := h.SetName(name); err != nil {
			return err
		}
	}
	if req.Star != nil {
		h.SetStar(*req.Star)
	}
	if req.Status != nil {
		if err := h.SetStatus(status); err != nil {
			return err
		}
	}
	if len(req.Period) > 0 {
		if err := h.SetPeriod(period); err != nil {
			return err
		}
	}
	if req.Tags != nil {
		h.SetTags(*req.Tags)
	}
	if req.WeeklyGoal != nil {
		if err := h.SetWeeklyGoal(*req.WeeklyGoal); err != nil {
			return err
		}
	}
	return c.JSON(newHabitDetail(h))
}

// deleteHabit soft-deletes; the habit stays in the document.
func (s *Server) deleteHabit(c *fiber.Ctx) error {
	_, h, err := s.habit(c)
	if err != nil {
		return err
	}
	if err := h.SetStatus(constants.HabitStatusSoftDeleted); err != nil {
		return err
	}
	return c.JSON(newHabitDetail(h))
}

func (s *Server) listLists(c *fiber.Ctx) error {
	list, err := s.habitList(c)
	if err != nil {
		return err
	}
	out := []models.ListMeta{}
	for _, m := range list.Lists() {
		if !m.Deleted {
			out = append(out, m)
		}
	}
	return c.JSON(out)
}
