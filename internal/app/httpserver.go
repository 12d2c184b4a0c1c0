package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/attendance"
	"github.com/oquvmarkaz/markaz-bot/internal/ctxutil"
	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/export"
	"github.com/oquvmarkaz/markaz-bot/internal/metrics"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
	"github.com/oquvmarkaz/markaz-bot/internal/notify"
	"github.com/oquvmarkaz/markaz-bot/internal/observability"
)

// API — HTTP-поверхность для админки учебного центра.
type API struct {
	DB       *sql.DB
	Recorder *attendance.Recorder
	Log      *zap.Logger
	Location *time.Location

	validate *validator.Validate
}

type HTTPServer struct {
	srv *http.Server
}

func StartHTTP(ctx context.Context, addr string, api *API) *HTTPServer {
	api.validate = validator.New()

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := ctxutil.WithTimeout(r.Context(), 800*time.Millisecond)
		defer cancel()
		t0 := time.Now()
		if err := api.DB.PingContext(ctx); err != nil {
			http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		metrics.ObserveDBPing(time.Since(t0))
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("POST /api/attendance", api.handleRecordAttendance)
	mux.HandleFunc("POST /api/notifications", api.handleEnqueueNotification)
	mux.HandleFunc("POST /api/notifications/payment-reminders", api.handlePaymentReminders)
	mux.HandleFunc("GET /api/notifications", api.handleListNotifications)
	mux.HandleFunc("PUT /api/settings", api.handleSetSetting)
	mux.HandleFunc("GET /api/reports/attendance", api.handleAttendanceReport)

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		_ = srv.ListenAndServe() // закрываем аккуратно при Shutdown
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	return &HTTPServer{srv: srv}
}

type attendanceRequest struct {
	Items []attendance.Submission `json:"items" validate:"required,min=1,dive"`
}

type attendanceRecordDTO struct {
	ID          int64  `json:"id"`
	StudentID   int64  `json:"student_id"`
	GroupID     int64  `json:"group_id"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	Performance string `json:"performance"`
}

type attendanceResponse struct {
	Created []attendanceRecordDTO `json:"created"`
	Errors  []string              `json:"errors,omitempty"`
}

// handleRecordAttendance — пакетная отметка. Отбракованные элементы не мешают
// соседним: создаём что можем, про остальное честно рассказываем в errors.
func (api *API) handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректный JSON: "+err.Error())
		return
	}
	if err := api.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, rejected, err := api.Recorder.RecordBatch(r.Context(), req.Items)
	if err != nil {
		observability.CaptureErr(err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := attendanceResponse{}
	for _, rec := range created {
		resp.Created = append(resp.Created, attendanceRecordDTO{
			ID:          rec.ID,
			StudentID:   rec.StudentID,
			GroupID:     rec.GroupID,
			Date:        rec.Date.Format("2006-01-02"),
			Status:      string(rec.Status),
			Performance: string(rec.Performance),
		})
	}
	status := http.StatusOK
	for _, verr := range rejected {
		status = http.StatusBadRequest
		resp.Errors = append(resp.Errors, verr.Error())
	}
	writeJSON(w, status, resp)
}

type enqueueRequest struct {
	Type      string `json:"type" validate:"required,oneof=attendance_reminder performance_reminder payment_reminder test_result broadcast other"`
	ChatID    int64  `json:"telegram_id"`
	Message   string `json:"message" validate:"required"`
	Phone     string `json:"phone_number,omitempty"`
	Broadcast bool   `json:"broadcast,omitempty"`
}

func (api *API) handleEnqueueNotification(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректный JSON: "+err.Error())
		return
	}
	if err := api.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Broadcast && req.ChatID == 0 {
		writeError(w, http.StatusBadRequest, "telegram_id обязателен для адресного уведомления")
		return
	}

	var id int64
	var err error
	if req.Broadcast {
		id, err = notify.EnqueueBroadcast(r.Context(), api.DB, req.Message)
	} else {
		id, err = notify.Enqueue(r.Context(), api.DB, models.NotificationType(req.Type), req.ChatID, req.Message, req.Phone)
	}
	if err != nil {
		observability.CaptureErr(err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (api *API) handlePaymentReminders(w http.ResponseWriter, r *http.Request) {
	queued, err := notify.EnqueuePaymentReminders(r.Context(), api.DB, api.Log)
	if err != nil {
		observability.CaptureErr(err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"queued": queued})
}

type settingRequest struct {
	Key    string `json:"key" validate:"required"`
	UserID int64  `json:"user_id,omitempty"`
	Value  string `json:"value" validate:"required"`
}

// handleSetSetting — правка цен, порога и текстов шаблонов из админки.
func (api *API) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректный JSON: "+err.Error())
		return
	}
	if err := api.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := db.SetSetting(r.Context(), api.DB, req.Key, req.UserID, req.Value); err != nil {
		observability.CaptureErr(err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.Log.Info("настройка обновлена", zap.String("key", req.Key), zap.Int64("user_id", req.UserID))
	writeJSON(w, http.StatusOK, map[string]string{"key": req.Key})
}

func (api *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	status := models.NotificationStatus(r.URL.Query().Get("status"))
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	list, err := db.ListNotifications(r.Context(), api.DB, status, limit)
	if err != nil {
		observability.CaptureErr(err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type dto struct {
		ID        int64  `json:"id"`
		Type      string `json:"type"`
		Message   string `json:"message"`
		ChatID    int64  `json:"telegram_id"`
		Phone     string `json:"phone_number,omitempty"`
		Status    string `json:"status"`
		Error     string `json:"error,omitempty"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]dto, 0, len(list))
	for _, n := range list {
		out = append(out, dto{
			ID:        n.ID,
			Type:      string(n.Type),
			Message:   n.Message,
			ChatID:    n.TelegramID,
			Phone:     n.PhoneNumber.String,
			Status:    string(n.Status),
			Error:     n.Error.String,
			CreatedAt: n.CreatedAt.In(api.Location).Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAttendanceReport — выгрузка посещаемости за период в xlsx.
func (api *API) handleAttendanceReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r, api.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := db.ListAttendanceBetween(r.Context(), api.DB, from, to)
	if err != nil {
		observability.CaptureErr(err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.Date.Format("02.01.2006"),
			strconv.FormatInt(rec.StudentID, 10),
			strconv.FormatInt(rec.GroupID, 10),
			string(rec.Status),
			string(rec.Performance),
		})
	}
	sheets := []export.SheetSpec{{
		Title:  "Посещаемость",
		Header: []string{"Дата", "Ученик", "Группа", "Статус", "Оценка"},
		Rows:   rows,
	}}

	if s, err := api.notificationAuditSheet(r.Context()); err != nil {
		observability.CaptureErr(err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else {
		sheets = append(sheets, s)
	}
	if s, err := api.groupSummarySheet(r.Context()); err != nil {
		observability.CaptureErr(err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else {
		sheets = append(sheets, s)
	}

	wb, err := export.NewWorkbook(sheets)
	if err != nil {
		observability.CaptureErr(err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="attendance.xlsx"`)
	if err := wb.File.Write(w); err != nil {
		api.Log.Warn("не удалось отдать отчёт", zap.Error(err))
	}
}

// notificationAuditSheet — журнал последних уведомлений для сверки рассылок.
func (api *API) notificationAuditSheet(ctx context.Context) (export.SheetSpec, error) {
	list, err := db.ListNotifications(ctx, api.DB, "", 1000)
	if err != nil {
		return export.SheetSpec{}, err
	}
	rows := make([][]string, 0, len(list))
	for _, n := range list {
		rows = append(rows, []string{
			n.CreatedAt.In(api.Location).Format("02.01.2006 15:04"),
			string(n.Type),
			strconv.FormatInt(n.TelegramID, 10),
			string(n.Status),
			n.Error.String,
		})
	}
	return export.SheetSpec{
		Title:  "Уведомления",
		Header: []string{"Создано", "Тип", "Чат", "Статус", "Ошибка"},
		Rows:   rows,
	}, nil
}

// groupSummarySheet — сводка по группам: преподаватель и наполняемость.
func (api *API) groupSummarySheet(ctx context.Context) (export.SheetSpec, error) {
	groups, err := db.ListGroups(ctx, api.DB)
	if err != nil {
		return export.SheetSpec{}, err
	}
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		teacherName := ""
		if g.TeacherID.Valid {
			emp, err := db.GetEmployeeByID(ctx, api.DB, g.TeacherID.Int64)
			if err != nil {
				return export.SheetSpec{}, err
			}
			if emp != nil {
				teacherName = emp.Name
			}
		}
		count, err := db.CountStudentsInGroup(ctx, api.DB, g.ID)
		if err != nil {
			return export.SheetSpec{}, err
		}
		price := ""
		if g.Price.Valid {
			price = strconv.FormatInt(g.Price.Int64, 10)
		}
		rows = append(rows, []string{
			g.Name, teacherName, strconv.Itoa(count), price,
		})
	}
	return export.SheetSpec{
		Title:  "Группы",
		Header: []string{"Группа", "Преподаватель", "Учеников", "Цена занятия"},
		Rows:   rows,
	}, nil
}

func parsePeriod(r *http.Request, loc *time.Location) (time.Time, time.Time, error) {
	const layout = "2006-01-02"
	now := time.Now().In(loc)
	from := now.AddDate(0, -1, 0)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from: ожидается YYYY-MM-DD")
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to: ожидается YYYY-MM-DD")
		}
		to = t
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	metrics.HandlerErrors.Inc()
	writeJSON(w, status, map[string]string{"error": msg})
}
