package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/exam"
)

type (
	createExamBody struct {
		Title              string          `json:"title"`
		Description        string          `json:"description"`
		DurationMinutes    int             `json:"duration_minutes"`
		Anytime            bool            `json:"anytime"`
		StartAt            *time.Time      `json:"start_at"`
		EndAt              *time.Time      `json:"end_at"`
		RandomizeQuestions bool            `json:"randomize_questions"`
		PassPercentage     decimal.Decimal `json:"pass_percentage"`
	}

	updateExamBody struct {
		ExpectedVersion    *int             `json:"expected_version"`
		Title              *string          `json:"title"`
		Description        *string          `json:"description"`
		DurationMinutes    *int             `json:"duration_minutes"`
		Anytime            *bool            `json:"anytime"`
		StartAt            *time.Time       `json:"start_at"`
		EndAt              *time.Time       `json:"end_at"`
		RandomizeQuestions *bool            `json:"randomize_questions"`
		PassPercentage     *decimal.Decimal `json:"pass_percentage"`
	}

	deleteExamBody struct {
		ExpectedVersion *int `json:"expected_version"`
	}

	questionBody struct {
		ExpectedVersion *int                `json:"expected_version"`
		Type            domain.QuestionType `json:"type"`
		Prompt          json.RawMessage     `json:"prompt"`
		Options         []string            `json:"options"`
		CorrectAnswer   domain.Answer       `json:"correct_answer"`
		Points          decimal.Decimal     `json:"points"`
	}

	reorderBody struct {
		QuestionIDs []string `json:"question_ids" binding:"required"`
	}

	participantBody struct {
		UserID string `json:"user_id"`
	}
)

func (a *API) createExam(c *gin.Context) {
	var body createExamBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, badBody(err))
		return
	}

	e, err := a.exams.CreateExam(c.Request.Context(), exam.CreateExamRequest{
		ActorID:            userID(c),
		Title:              body.Title,
		Description:        body.Description,
		DurationMinutes:    body.DurationMinutes,
		Anytime:            body.Anytime,
		StartAt:            body.StartAt,
		EndAt:              body.EndAt,
		RandomizeQuestions: body.RandomizeQuestions,
		PassPercentage:     body.PassPercentage,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, toExam(e))
}

func (a *API) getExam(c *gin.Context) {
	d, err := a.exams.GetExam(c.Request.Context(), exam.GetExamRequest{
		ExamID:  c.Param("examID"),
		ActorID: userID(c),
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, ExamDetails{
		Exam:      toExam(&d.Exam),
		Questions: toQuestions(d.Questions),
	})
}

func (a *API) updateExam(c *gin.Context) {
	var body updateExamBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, badBody(err))
		return
	}

	e, err := a.exams.UpdateExam(c.Request.Context(), exam.UpdateExamRequest{
		ExamID:             c.Param("examID"),
		ActorID:            userID(c),
		ExpectedVersion:    body.ExpectedVersion,
		Title:              body.Title,
		Description:        body.Description,
		DurationMinutes:    body.DurationMinutes,
		Anytime:            body.Anytime,
		StartAt:            body.StartAt,
		EndAt:              body.EndAt,
		RandomizeQuestions: body.RandomizeQuestions,
		PassPercentage:     body.PassPercentage,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, toExam(e))
}

func (a *API) deleteExam(c *gin.Context) {
	// The body is optional here.
	var body deleteExamBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			a.fail(c, badBody(err))
			return
		}
	}

	err := a.exams.DeleteExam(c.Request.Context(), exam.DeleteExamRequest{
		ExamID:          c.Param("examID"),
		ActorID:         userID(c),
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) addQuestion(c *gin.Context) {
	var body questionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, badBody(err))
		return
	}

	q, err := a.exams.AddQuestion(c.Request.Context(), exam.AddQuestionRequest{
		ExamID:        c.Param("examID"),
		ActorID:       userID(c),
		Type:          body.Type,
		Prompt:        body.Prompt,
		Options:       body.Options,
		CorrectAnswer: body.CorrectAnswer,
		Points:        body.Points,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, toQuestion(q))
}

func (a *API) updateQuestion(c *gin.Context) {
	var body questionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, badBody(err))
		return
	}

	q, err := a.exams.UpdateQuestion(c.Request.Context(), exam.UpdateQuestionRequest{
		ExamID:          c.Param("examID"),
		QuestionID:      c.Param("questionID"),
		ActorID:         userID(c),
		ExpectedVersion: body.ExpectedVersion,
		Type:            body.Type,
		Prompt:          body.Prompt,
		Options:         body.Options,
		CorrectAnswer:   body.CorrectAnswer,
		Points:          body.Points,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuestion(q))
}

func (a *API) deleteQuestion(c *gin.Context) {
	err := a.exams.DeleteQuestion(c.Request.Context(), exam.DeleteQuestionRequest{
		ExamID:     c.Param("examID"),
		QuestionID: c.Param("questionID"),
		ActorID:    userID(c),
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) reorderQuestions(c *gin.Context) {
	var body reorderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, badBody(err))
		return
	}

	qs, err := a.exams.ReorderQuestions(c.Request.Context(), exam.ReorderQuestionsRequest{
		ExamID:      c.Param("examID"),
		ActorID:     userID(c),
		QuestionIDs: body.QuestionIDs,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": toQuestions(qs)})
}

func (a *API) addParticipant(c *gin.Context) {
	var body participantBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, badBody(err))
		return
	}

	p, err := a.exams.AddParticipant(c.Request.Context(), exam.AddParticipantRequest{
		ExamID:  c.Param("examID"),
		ActorID: userID(c),
		UserID:  body.UserID,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, toParticipant(p))
}

func (a *API) listParticipants(c *gin.Context) {
	ps, err := a.exams.ListParticipants(c.Request.Context(), exam.ListParticipantsRequest{
		ExamID:  c.Param("examID"),
		ActorID: userID(c),
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	out := make([]Participant, 0, len(ps))
	for i := range ps {
		out = append(out, toParticipant(&ps[i]))
	}

	c.JSON(http.StatusOK, gin.H{"participants": out})
}

func (a *API) removeParticipant(c *gin.Context) {
	err := a.exams.RemoveParticipant(c.Request.Context(), exam.RemoveParticipantRequest{
		ExamID:        c.Param("examID"),
		ActorID:       userID(c),
		ParticipantID: c.Param("participantID"),
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
