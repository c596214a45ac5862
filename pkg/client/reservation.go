package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"agenda/pkg/model"
)

const headerUser = "X-User-ID"

// ReservationClient calls the reservation API on behalf of one user.
type ReservationClient struct {
	httpClient *HttpClient
}

func NewReservationClient(baseURL, user string) *ReservationClient {
	return &ReservationClient{
		httpClient: NewHttpClient(baseURL).WithHeader(headerUser, user),
	}
}

type UpdateResult struct {
	Old model.ReservationView `json:"old"`
	New model.ReservationView `json:"new"`
}

type Overrides struct {
	AllowPast         bool `json:"allow_past,omitempty"`
	SkipAdvanceWindow bool `json:"skip_advance_window,omitempty"`
}

type ReserveRequest struct {
	ServiceName string    `json:"service_name"`
	StartTime   time.Time `json:"start_time"`
	DurationMin *int      `json:"duration_min,omitempty"`
	Overrides
}

type UpdateRequest struct {
	OldStartTime *time.Time `json:"old_start_time,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	ServiceName  string     `json:"service_name,omitempty"`
	DurationMin  *int       `json:"duration_min,omitempty"`
	Overrides
}

type CancelRequest struct {
	StartTime   *time.Time `json:"start_time,omitempty"`
	ServiceName string     `json:"service_name,omitempty"`
	Overrides
}

func reservationPath(id string) string {
	return "/api/v1/reservations/id/" + url.PathEscape(id)
}

func (c *ReservationClient) reservation(resp *Response, err error) (*model.ReservationView, error) {
	if err != nil {
		return nil, err
	}
	var r model.ReservationView
	if err := decode(resp, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *ReservationClient) update(resp *Response, err error) (*UpdateResult, error) {
	if err != nil {
		return nil, err
	}
	var result UpdateResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ReservationClient) Reserve(ctx context.Context, req ReserveRequest) (*model.ReservationView, error) {
	return c.reservation(c.httpClient.POST(ctx, "/api/v1/reservations", req))
}

func (c *ReservationClient) Get(ctx context.Context, id string) (*model.ReservationView, error) {
	return c.reservation(c.httpClient.GET(ctx, reservationPath(id)))
}

func (c *ReservationClient) Mine(ctx context.Context) ([]model.ReservationView, error) {
	resp, err := c.httpClient.GET(ctx, "/api/v1/reservations")
	if err != nil {
		return nil, err
	}
	var list []model.ReservationView
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *ReservationClient) Update(ctx context.Context, id string, req UpdateRequest) (*UpdateResult, error) {
	req.OldStartTime = nil
	return c.update(c.httpClient.PATCH(ctx, reservationPath(id), req))
}

// Reschedule updates the reservation starting at req.OldStartTime.
func (c *ReservationClient) Reschedule(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	return c.update(c.httpClient.POST(ctx, "/api/v1/reservations/reschedule", req))
}

func (c *ReservationClient) Cancel(ctx context.Context, id string) (*model.ReservationView, error) {
	return c.reservation(c.httpClient.DELETE(ctx, reservationPath(id)))
}

// CancelAt cancels the reservation starting at, or running over, req.StartTime.
func (c *ReservationClient) CancelAt(ctx context.Context, req CancelRequest) (*model.ReservationView, error) {
	return c.reservation(c.httpClient.POST(ctx, "/api/v1/reservations/cancel", req))
}

func (c *ReservationClient) Confirm(ctx context.Context, id string) (*model.ReservationView, error) {
	return c.reservation(c.httpClient.POST(ctx, reservationPath(id)+"/confirm", nil))
}

func (c *ReservationClient) Decline(ctx context.Context, id string) (*model.ReservationView, error) {
	return c.reservation(c.httpClient.POST(ctx, reservationPath(id)+"/decline", nil))
}

func (c *ReservationClient) Availability(ctx context.Context, service string, minStart, maxStart time.Time) (*model.Availability, error) {
	q := url.Values{}
	q.Set("service", service)
	q.Set("min_start", minStart.Format(time.RFC3339))
	q.Set("max_start", maxStart.Format(time.RFC3339))

	resp, err := c.httpClient.GET(ctx, "/api/v1/availability?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var a model.Availability
	if err := decode(resp, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *ReservationClient) IsAvailable(ctx context.Context, service string, start time.Time, durationMin int) (bool, error) {
	q := url.Values{}
	q.Set("service", service)
	q.Set("start", start.Format(time.RFC3339))
	if durationMin > 0 {
		q.Set("duration_min", strconv.Itoa(durationMin))
	}

	resp, err := c.httpClient.GET(ctx, "/api/v1/availability/check?"+q.Encode())
	if err != nil {
		return false, err
	}
	var result struct {
		OK bool `json:"ok"`
	}
	if err := decode(resp, &result); err != nil {
		return false, err
	}
	return result.OK, nil
}

func (c *ReservationClient) Services(ctx context.Context) ([]model.Service, error) {
	resp, err := c.httpClient.GET(ctx, "/api/v1/services")
	if err != nil {
		return nil, err
	}
	var services []model.Service
	if err := decode(resp, &services); err != nil {
		return nil, err
	}
	return services, nil
}
