package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/models"
)

const recentOrderLimit = 10

// handleDashboardMetrics handles GET /api/dashboard/metrics.
//
// Browser navigation (Accept without application/json) receives the dashboard
// HTML shell without authentication; the page fetches its own data as JSON.
// JSON requests require a valid identity and get role-scoped metrics.
func (s *Server) handleDashboardMetrics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if !strings.Contains(r.Header.Get("Accept"), "application/json") {
		s.renderTemplate(w, "dashboard.html", nil)
		return
	}

	id := identity(r)
	if id == nil {
		WriteErrorMessage(w, apperr.AuthMissing, http.StatusUnauthorized, "Authentication required")
		return
	}

	var (
		data map[string]interface{}
		err  error
	)
	switch id.User.Role {
	case models.RoleSuperadmin:
		data, err = s.staffMetrics(r.Context(), true)
	case models.RoleAdmin:
		data, err = s.staffMetrics(r.Context(), false)
	case models.RoleEmployee:
		data, err = s.employeeMetrics(r.Context(), id.User.ID)
	default:
		data, err = s.clientMetrics(r.Context(), id.User.ID)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("role", id.User.Role).Msg("dashboard metrics failed")
		WriteError(w, err)
		return
	}

	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   data,
	})
}

// staffMetrics builds the shop-wide view. Superadmins additionally see staff
// headcount, in-progress volume and the outstanding balance across the book.
func (s *Server) staffMetrics(ctx context.Context, superadmin bool) (map[string]interface{}, error) {
	allOrders, err := s.storage.Orders().List(ctx, interfaces.OrderListOptions{})
	if err != nil {
		return nil, err
	}
	customers, err := s.storage.Customers().List(ctx)
	if err != nil {
		return nil, err
	}

	startOfDay := dayStart(time.Now())
	totalRevenue, todayRevenue, outstanding := decimal.Zero, decimal.Zero, decimal.Zero
	todayOrders, pending, inProgress, ready := 0, 0, 0, 0

	for _, o := range allOrders {
		totalRevenue = totalRevenue.Add(o.AmountPaid)
		if !o.CreatedAt.Before(startOfDay) {
			todayOrders++
			todayRevenue = todayRevenue.Add(o.AmountPaid)
		}
		switch o.OrderStatus {
		case models.OrderPending:
			pending++
		case models.OrderInProgress:
			inProgress++
		case models.OrderReady:
			ready++
		}
		if o.OrderStatus != models.OrderCancelled {
			outstanding = outstanding.Add(o.OutstandingBalance())
		}
	}

	names, err := s.customerNames(ctx, customers)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"total_customers":  len(customers),
		"total_orders":     len(allOrders),
		"total_revenue":    totalRevenue,
		"today_orders":     todayOrders,
		"today_revenue":    todayRevenue,
		"pending_orders":   pending,
		"ready_for_pickup": ready,
		"recent_orders":    recentOrders(allOrders, names, false),
	}
	if superadmin {
		users, err := s.storage.Users().List(ctx, "")
		if err != nil {
			return nil, err
		}
		staff := 0
		for _, u := range users {
			if u.IsStaff() {
				staff++
			}
		}
		data["total_staff"] = staff
		data["in_progress_orders"] = inProgress
		data["total_outstanding"] = outstanding
	}
	return data, nil
}

// employeeMetrics scopes everything to orders assigned to the employee.
func (s *Server) employeeMetrics(ctx context.Context, userID int64) (map[string]interface{}, error) {
	allOrders, err := s.storage.Orders().List(ctx, interfaces.OrderListOptions{})
	if err != nil {
		return nil, err
	}

	var mine []*models.Order
	for _, o := range allOrders {
		if o.AssignedTo != nil && *o.AssignedTo == userID {
			mine = append(mine, o)
		}
	}

	startOfDay := dayStart(time.Now())
	revenue := decimal.Zero
	pending, inProgress, today := 0, 0, 0
	for _, o := range mine {
		revenue = revenue.Add(o.TotalAmount)
		if !o.CreatedAt.Before(startOfDay) {
			today++
		}
		switch o.OrderStatus {
		case models.OrderPending:
			pending++
		case models.OrderInProgress:
			inProgress++
		}
	}

	customers, err := s.storage.Customers().List(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.customerNames(ctx, customers)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"my_orders":          len(mine),
		"my_pending":         pending,
		"my_in_progress":     inProgress,
		"my_today_orders":    today,
		"my_revenue":         revenue,
		"my_assigned_orders": recentOrders(mine, names, false),
	}, nil
}

// clientMetrics scopes everything to the client's own customer profile.
func (s *Server) clientMetrics(ctx context.Context, userID int64) (map[string]interface{}, error) {
	customer, err := s.storage.Customers().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, apperr.New(apperr.CustomerNotFound, http.StatusNotFound, "Customer profile not found")
		}
		return nil, err
	}

	mine, err := s.storage.Orders().List(ctx, interfaces.OrderListOptions{CustomerID: customer.ID})
	if err != nil {
		return nil, err
	}

	pending, ready := 0, 0
	for _, o := range mine {
		switch o.OrderStatus {
		case models.OrderPending:
			pending++
		case models.OrderReady:
			ready++
		}
	}

	return map[string]interface{}{
		"total_orders":     len(mine),
		"total_spent":      customer.TotalSpent,
		"pending_orders":   pending,
		"ready_for_pickup": ready,
		"recent_orders":    recentOrders(mine, nil, true),
	}, nil
}

// customerNames resolves customer IDs to the display name of the owning user.
func (s *Server) customerNames(ctx context.Context, customers []*models.Customer) (map[int64]string, error) {
	users, err := s.storage.Users().List(ctx, models.RoleClient)
	if err != nil {
		return nil, err
	}
	byUser := make(map[int64]string, len(users))
	for _, u := range users {
		byUser[u.ID] = displayName(u)
	}
	names := make(map[int64]string, len(customers))
	for _, c := range customers {
		names[c.ID] = byUser[c.UserID]
	}
	return names, nil
}

func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// recentOrders returns up to recentOrderLimit newest orders as summary rows.
func recentOrders(orders []*models.Order, names map[int64]string, withBalance bool) []map[string]interface{} {
	sorted := make([]*models.Order, len(orders))
	copy(sorted, orders)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > recentOrderLimit {
		sorted = sorted[:recentOrderLimit]
	}

	rows := make([]map[string]interface{}, 0, len(sorted))
	for _, o := range sorted {
		row := map[string]interface{}{
			"id":           o.ID,
			"order_number": o.OrderNumber,
			"total_amount": o.TotalAmount,
			"status":       o.OrderStatus,
			"created_at":   o.CreatedAt,
		}
		if names != nil {
			row["customer_name"] = names[o.CustomerID]
		}
		if withBalance {
			row["amount_paid"] = o.AmountPaid
			row["balance"] = o.OutstandingBalance()
		}
		rows = append(rows, row)
	}
	return rows
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
