package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/exam/internal/attempt"
	"github.com/victornm/exam/internal/domain"
)

type (
	startBody struct {
		AccessCode string `json:"access_code" binding:"required"`
	}

	answerBody struct {
		Answer domain.Answer `json:"answer"`
	}
)

func (a *API) startAttempt(c *gin.Context) {
	var body startBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, badBody(err))
		return
	}

	resp, err := a.attempts.Start(c.Request.Context(), attempt.StartRequest{
		AccessCode: body.AccessCode,
		UserID:     userID(c),
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, StartAttempt{
		AttemptID:      resp.AttemptID,
		ExamID:         resp.ExamID,
		TotalQuestions: resp.TotalQuestions,
		TimeRemaining:  resp.TimeRemaining,
	})
}

func (a *API) nextQuestion(c *gin.Context) {
	resp, err := a.attempts.NextQuestion(c.Request.Context(), attempt.NextQuestionRequest{
		AttemptID: c.Param("attemptID"),
		UserID:    userID(c),
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, NextQuestion{
		Status:         resp.Status,
		Question:       toQuestionView(resp.Question),
		QuestionNumber: resp.QuestionNumber,
		TotalQuestions: resp.TotalQuestions,
		Answered:       resp.Answered,
		HasNext:        resp.HasNext,
		ReadyToSubmit:  resp.ReadyToSubmit,
		TimeRemaining:  resp.TimeRemaining,
		Result:         toResultPtr(resp.Result),
	})
}

func (a *API) submitAnswer(c *gin.Context) {
	var body answerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, badBody(err))
		return
	}

	resp, err := a.attempts.SubmitAnswer(c.Request.Context(), attempt.SubmitAnswerRequest{
		AttemptID:  c.Param("attemptID"),
		UserID:     userID(c),
		QuestionID: c.Param("questionID"),
		Answer:     body.Answer,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitAnswer{
		Status:        resp.Status,
		TimeRemaining: resp.TimeRemaining,
		Progress: Progress{
			Answered:             resp.Progress.Answered,
			Total:                resp.Progress.Total,
			CurrentQuestionIndex: resp.Progress.CurrentQuestionIndex,
		},
		Result: toResultPtr(resp.Result),
	})
}

func (a *API) submitExam(c *gin.Context) {
	resp, err := a.attempts.SubmitExam(c.Request.Context(), attempt.SubmitExamRequest{
		AttemptID: c.Param("attemptID"),
		UserID:    userID(c),
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitExam{
		Result:     toResult(resp.Result),
		ByDeadline: resp.ByDeadline,
	})
}

func (a *API) results(c *gin.Context) {
	resp, err := a.attempts.Results(c.Request.Context(), attempt.ResultsRequest{
		AttemptID: c.Param("attemptID"),
		UserID:    userID(c),
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Results{
		Result:         toResult(resp.Result),
		ExamTitle:      resp.ExamTitle,
		PassPercentage: resp.PassPercentage,
		Questions:      resp.Questions,
	})
}

func (a *API) abandon(c *gin.Context) {
	resp, err := a.attempts.Abandon(c.Request.Context(), attempt.AbandonRequest{
		AttemptID: c.Param("attemptID"),
		ActorID:   userID(c),
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Abandon{
		AttemptID:   resp.AttemptID,
		Status:      resp.Status,
		AbandonedAt: resp.AbandonedAt,
	})
}

func (a *API) listResults(c *gin.Context) {
	resp, err := a.attempts.ListResults(c.Request.Context(), attempt.ListResultsRequest{
		UserID: userID(c),
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	out := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, toResult(r))
	}

	c.JSON(http.StatusOK, gin.H{"results": out})
}
