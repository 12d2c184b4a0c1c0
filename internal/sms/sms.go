package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/models"
)

// ErrBadPhone — номер не приводится к каноническому виду 998XXXXXXXXX.
var ErrBadPhone = errors.New("malformed phone number")

// Шаблоны провайдера по типу уведомления. Отсутствие в карте —
// для этого типа SMS не предусмотрена.
var templateIDs = map[models.NotificationType]int{
	models.NotifyAttendance:  4001,
	models.NotifyPerformance: 4002,
	models.NotifyPayment:     4003,
	models.NotifyTestResult:  4004,
}

// Client — адаптер SMS-шлюза (broker-api). Без состояния, кроме реквизитов.
type Client struct {
	baseURL  string
	login    string
	password string
	sender   string
	httpc    *http.Client
	log      *zap.Logger
}

// New возвращает nil при пустом логине: канал выключен, диспетчер
// работает без SMS вместо падения процесса.
func New(baseURL, login, password, sender string, log *zap.Logger) *Client {
	if login == "" {
		log.Warn("SMS_LOGIN не задан — SMS-канал отключён")
		return nil
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		login:    login,
		password: password,
		sender:   sender,
		httpc:    &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

func (c *Client) Applicable(typ models.NotificationType) bool {
	_, ok := templateIDs[typ]
	return ok
}

// SendTemplate отправляет SMS по шаблону провайдера.
// Поля кладутся в позиционные слоты: см. packFields.
func (c *Client) SendTemplate(ctx context.Context, typ models.NotificationType, phone string, fields map[string]string) error {
	tmplID, ok := templateIDs[typ]
	if !ok {
		// нет шаблона — тихий no-op, это штатный случай
		return nil
	}
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadPhone, phone)
	}

	payload := map[string]any{
		"login":      c.login,
		"password":   c.password,
		"originator": c.sender,
		"messages": []map[string]any{{
			"recipient":   normalized,
			"template-id": tmplID,
			"fields":      packFields(fields),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms gateway: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// NormalizePhone приводит номер к 12 цифрам с кодом страны: 998XXXXXXXXX.
// Принимаются записи с +, пробелами и дефисами, а также короткая
// девятизначная форма без кода.
func NormalizePhone(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 12 && strings.HasPrefix(d, "998"):
		return d, nil
	case len(d) == 9:
		return "998" + d, nil
	default:
		return "", ErrBadPhone
	}
}

// packFields раскладывает именованные поля по позиционным слотам провайдера:
// имена сортируются лексикографически и занимают field1, field2, …
// Вызывающий обязан подбирать имена так, чтобы их порядок совпадал
// с порядком подстановок в шаблоне.
func packFields(fields map[string]string) map[string]string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(names))
	for i, name := range names {
		out[fmt.Sprintf("field%d", i+1)] = fields[name]
	}
	return out
}
