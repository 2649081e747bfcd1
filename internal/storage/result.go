package storage

import (
	"sort"

	"github.com/minetick/ticket-store/internal/model"
)

// Result is one page of a filtered, sorted ticket collection.
type Result struct {
	Tickets      []model.Ticket `json:"tickets"`
	Page         int            `json:"page"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
}

// Paginate chunks an already-sorted candidate list into pages of pageSize and
// returns the requested page, clamped into [1, totalPages]. A pageSize of 0 or
// an empty list yields a single page holding the whole list. Identical across
// backends by construction: every backend funnels through here.
func Paginate(tickets []model.Ticket, page, pageSize int) Result {
	total := len(tickets)

	var chunks [][]model.Ticket
	if pageSize == 0 || total == 0 {
		chunks = [][]model.Ticket{tickets}
	} else {
		for i := 0; i < total; i += pageSize {
			end := i + pageSize
			if end > total {
				end = total
			}
			chunks = append(chunks, tickets[i:end])
		}
	}
	totalPages := len(chunks)

	fixed := page
	switch {
	case totalPages == 0 || page < 1:
		fixed = 1
	case page > totalPages:
		fixed = totalPages
	}

	var pageTickets []model.Ticket
	if fixed-1 < len(chunks) {
		pageTickets = chunks[fixed-1]
	}
	return Result{
		Tickets:      pageTickets,
		Page:         fixed,
		TotalPages:   totalPages,
		TotalResults: total,
	}
}

// SortForListing orders open-ticket listings: priority descending, then id
// descending.
func SortForListing(tickets []model.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].Priority != tickets[j].Priority {
			return tickets[i].Priority > tickets[j].Priority
		}
		return tickets[i].ID > tickets[j].ID
	})
}

// SortByIDDesc orders search results: id descending.
func SortByIDDesc(tickets []model.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].ID > tickets[j].ID
	})
}
