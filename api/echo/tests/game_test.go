package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	echoapi "github.com/trezcool/tiba/api/echo"
	"github.com/trezcool/tiba/core/game"
	"github.com/trezcool/tiba/core/user"
)

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v; body %s", err, rec.Body.String())
	}
}

func Test_gameApi_completeSession(t *testing.T) {
	app := setup(t)

	patient := createUser(t, "Hero", "hero", "hero@test.cd", "", []string{user.RolePatient}, true)
	patientToken := getToken(t, patient)

	reqMsg := "this field is required"
	postSession := func(t *testing.T, body []byte) *httptest.ResponseRecorder {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, "/v1/game/sessions", patientToken, body)
		app.ServeHTTP(rec, req)
		return rec
	}

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/game/sessions")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("required fields", func(t *testing.T) {
		rec := postSession(t, nil)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"level_span": reqMsg, "play_log": reqMsg}),
		}, rec)
	})

	t.Run("response time out of range", func(t *testing.T) {
		body := marchallObj(t, echoapi.CompleteSessionRequest{
			LevelSpan: 5,
			PlayLog:   []game.PlayEntry{{ResponseTime: 9, Outcome: game.OutcomeCorrect}},
		})
		rec := postSession(t, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusBadRequest)
		}
		if !strings.Contains(rec.Body.String(), game.ErrInvalidSessionData.Error()) {
			t.Errorf("failed! data = %v; want it to mention %q", rec.Body.String(), game.ErrInvalidSessionData.Error())
		}
	})

	t.Run("timeout entry must carry -1", func(t *testing.T) {
		body := marchallObj(t, echoapi.CompleteSessionRequest{
			LevelSpan: 5,
			PlayLog:   []game.PlayEntry{{ResponseTime: 2, Outcome: game.OutcomeNotDone}},
		})
		rec := postSession(t, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("valid session scores and levels", func(t *testing.T) {
		startedAt := time.Date(2021, 6, 1, 9, 0, 0, 0, time.UTC)
		body := marchallObj(t, echoapi.CompleteSessionRequest{
			StartedAt: startedAt,
			LevelSpan: 5,
			PlayLog: []game.PlayEntry{
				{ResponseTime: 0.8, Outcome: game.OutcomeCorrect},
				{ResponseTime: 1.2, Outcome: game.OutcomeCorrect},
				{ResponseTime: 0.5, Outcome: game.OutcomeIncorrect},
				{ResponseTime: game.TimeoutResponseTime, Outcome: game.OutcomeNotDone},
			},
		})
		rec := postSession(t, body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}

		var prog game.Progress
		decodeJSON(t, rec, &prog)
		if prog.TotalScore != 15 {
			t.Errorf("TotalScore = %v; want 15", prog.TotalScore)
		}
		if prog.Level != 1 {
			t.Errorf("Level = %v; want 1", prog.Level)
		}
		if prog.LevelSpan != game.DefaultLevelSpan {
			t.Errorf("LevelSpan = %v; want %v", prog.LevelSpan, game.DefaultLevelSpan)
		}

		sessions, err := gameRepo.ListSessions(patient.ID)
		if err != nil {
			t.Fatalf("ListSessions() failed: %v", err)
		}
		if len(sessions) != 1 {
			t.Fatalf("len(sessions) = %v; want 1", len(sessions))
		}
		if !sessions[0].StartedAt.Equal(startedAt) {
			t.Errorf("StartedAt = %v; want %v", sessions[0].StartedAt, startedAt)
		}
	})

	t.Run("score accumulates across sessions", func(t *testing.T) {
		log := make([]game.PlayEntry, 10)
		for i := range log {
			log[i] = game.PlayEntry{ResponseTime: 1, Outcome: game.OutcomeCorrect}
		}
		rec := postSession(t, marchallObj(t, echoapi.CompleteSessionRequest{LevelSpan: 5, PlayLog: log}))
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}

		var prog game.Progress
		decodeJSON(t, rec, &prog)
		if prog.TotalScore != 115 {
			t.Errorf("TotalScore = %v; want 115", prog.TotalScore)
		}
		if prog.Level != 2 {
			t.Errorf("Level = %v; want 2", prog.Level)
		}
	})

	t.Run("retried submission is not counted twice", func(t *testing.T) {
		body := marchallObj(t, echoapi.CompleteSessionRequest{
			ID:        uuid.New(),
			LevelSpan: 5,
			PlayLog:   []game.PlayEntry{{ResponseTime: 1, Outcome: game.OutcomeCorrect}},
		})
		rec := postSession(t, body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var first game.Progress
		decodeJSON(t, rec, &first)
		before, err := gameRepo.ListSessions(patient.ID)
		if err != nil {
			t.Fatalf("ListSessions() failed: %v", err)
		}

		// the response got lost; the client sends the same submission again
		rec = postSession(t, body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var again game.Progress
		decodeJSON(t, rec, &again)
		if again.TotalScore != first.TotalScore {
			t.Errorf("TotalScore after retry = %v; want %v", again.TotalScore, first.TotalScore)
		}
		after, err := gameRepo.ListSessions(patient.ID)
		if err != nil {
			t.Fatalf("ListSessions() failed: %v", err)
		}
		if len(after) != len(before) {
			t.Errorf("len(sessions) after retry = %v; want %v", len(after), len(before))
		}
	})
}

func Test_gameApi_levelSpan(t *testing.T) {
	app := setup(t)

	patient := createUser(t, "Hero", "hero", "hero@test.cd", "", []string{user.RolePatient}, true)
	caretaker := createUser(t, "Carer", "carer1", "carer@test.cd", "", []string{user.RoleCaretaker}, true)

	patientToken := getToken(t, patient)
	caretakerToken := getToken(t, caretaker)
	spanPath := "/v1/users/" + strconv.Itoa(patient.ID) + "/game/level-span"

	tests := []httpTest{
		{
			name: "own span defaults", method: http.MethodGet, path: "/v1/game/level-span", token: patientToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, echoapi.LevelSpanResponse{LevelSpan: game.DefaultLevelSpan}),
		},
		{
			name: "patient cannot set own span", method: http.MethodPut, path: spanPath, token: patientToken,
			body:     marchallObj(t, echoapi.SetLevelSpanRequest{LevelSpan: 7}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "span required", method: http.MethodPut, path: spanPath, token: caretakerToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"level_span": "this field is required"}),
		},
		{
			name: "span out of range", method: http.MethodPut, path: spanPath, token: caretakerToken,
			body:     marchallObj(t, echoapi.SetLevelSpanRequest{LevelSpan: 11}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"level_span": "must be between 1 and 10"}),
		},
		{
			name: "caretaker sets span", method: http.MethodPut, path: spanPath, token: caretakerToken,
			body:     marchallObj(t, echoapi.SetLevelSpanRequest{LevelSpan: 7}),
			wantCode: http.StatusOK, wantData: marchallObj(t, echoapi.LevelSpanResponse{LevelSpan: 7}),
		},
		{
			name: "patient sees the new span", method: http.MethodGet, path: "/v1/game/level-span", token: patientToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, echoapi.LevelSpanResponse{LevelSpan: 7}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_gameApi_statsAndReport(t *testing.T) {
	app := setup(t)

	patient := createUser(t, "Hero", "hero", "hero@test.cd", "", []string{user.RolePatient}, true)
	other := createUser(t, "Other", "other1", "other@test.cd", "", []string{user.RolePatient}, true)
	caretaker := createUser(t, "Carer", "carer1", "carer@test.cd", "", []string{user.RoleCaretaker}, true)
	doctor := createUser(t, "Doc", "doctor", "doc@test.cd", "", []string{user.RoleDoctor}, true)

	base := time.Date(2021, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		sess := game.Session{
			ID:        uuid.New(),
			UserID:    patient.ID,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			LevelSpan: 3,
			PlayLog:   []game.PlayEntry{{ResponseTime: 1, Outcome: game.OutcomeCorrect}},
		}
		prog := game.Progress{
			UserID:     patient.ID,
			TotalScore: (i + 1) * game.CorrectPoints,
			Level:      1,
			LevelSpan:  3,
			UpdatedAt:  sess.StartedAt,
		}
		if err := gameRepo.CompleteSession(sess, prog); err != nil {
			t.Fatalf("CompleteSession() failed: %v", err)
		}
	}

	statsPath := "/v1/users/" + strconv.Itoa(patient.ID) + "/game/stats"
	reportPath := "/v1/users/" + strconv.Itoa(patient.ID) + "/game/report"

	get := func(t *testing.T, path, token string) *httptest.ResponseRecorder {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, path, token)
		app.ServeHTTP(rec, req)
		return rec
	}
	checkWindow := func(t *testing.T, rec *httptest.ResponseRecorder, window int) {
		t.Helper()
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var report game.Report
		decodeJSON(t, rec, &report)
		if len(report.Sessions) != window {
			t.Fatalf("len(Sessions) = %v; want %v", len(report.Sessions), window)
		}
		if report.Overall.SessionsPlayed != 12 {
			t.Errorf("Overall.SessionsPlayed = %v; want 12", report.Overall.SessionsPlayed)
		}
		// window holds the most recent sessions, oldest first
		wantFirst := base.Add(time.Duration(12-window) * time.Hour)
		if !report.Sessions[0].StartedAt.Equal(wantFirst) {
			t.Errorf("Sessions[0].StartedAt = %v; want %v", report.Sessions[0].StartedAt, wantFirst)
		}
	}

	t.Run("stats: self", func(t *testing.T) {
		checkWindow(t, get(t, statsPath, getToken(t, patient)), game.BasicSessionWindow)
	})
	t.Run("stats: other patient forbidden", func(t *testing.T) {
		rec := get(t, statsPath, getToken(t, other))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})
	t.Run("stats: caretaker", func(t *testing.T) {
		checkWindow(t, get(t, statsPath, getToken(t, caretaker)), game.BasicSessionWindow)
	})
	t.Run("report: caretaker forbidden", func(t *testing.T) {
		rec := get(t, reportPath, getToken(t, caretaker))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})
	t.Run("report: doctor", func(t *testing.T) {
		checkWindow(t, get(t, reportPath, getToken(t, doctor)), game.DetailedSessionWindow)
	})
	t.Run("progress: fresh user defaults", func(t *testing.T) {
		freshPath := "/v1/users/" + strconv.Itoa(other.ID) + "/game/progress"
		rec := get(t, freshPath, getToken(t, other))
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
		}
		var prog game.Progress
		decodeJSON(t, rec, &prog)
		if prog.TotalScore != 0 || prog.Level != 1 || prog.LevelSpan != game.DefaultLevelSpan {
			t.Errorf("Progress = %+v; want fresh defaults", prog)
		}
	})
}
