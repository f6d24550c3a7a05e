package rest

import (
	"net/http"

	"condobill/internal/domain"
	"condobill/internal/service"
	"condobill/internal/transport/auth"
)

type partyDTO struct {
	ID        int64  `json:"id"`
	Document  string `json:"document"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type obligationDTO struct {
	ID            int64  `json:"id"`
	Kind          string `json:"kind"`
	Label         string `json:"label"`
	Period        string `json:"period,omitempty"`
	Amount        string `json:"amount"`
	AmountPaid    string `json:"amountPaid"`
	AmountPending string `json:"amountPending"`
	State         string `json:"state"`
}

type summaryDTO struct {
	TotalPending             string `json:"totalPending"`
	TotalDuesPending         string `json:"totalDuesPending"`
	TotalFinesPending        string `json:"totalFinesPending"`
	TotalReservationsPending string `json:"totalReservationsPending"`
	CountDues                int    `json:"countDues"`
	CountFines               int    `json:"countFines"`
	CountReservations        int    `json:"countReservations"`
}

type statementDTO struct {
	Party        partyDTO        `json:"party"`
	Dues         []obligationDTO `json:"dues"`
	Fines        []obligationDTO `json:"fines"`
	Reservations []obligationDTO `json:"reservations"`
	Summary      summaryDTO      `json:"summary"`
}

func toObligationDTOs(lines []service.ObligationLine) []obligationDTO {
	out := make([]obligationDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, obligationDTO{
			ID:            l.Obligation.ID,
			Kind:          string(l.Obligation.Kind),
			Label:         l.Obligation.Label,
			Period:        l.Obligation.Period,
			Amount:        l.Obligation.Total.StringFixed(2),
			AmountPaid:    l.AmountPaid.StringFixed(2),
			AmountPending: l.AmountPending.StringFixed(2),
			State:         string(l.Obligation.State),
		})
	}
	return out
}

func toStatementDTO(st *service.Statement) statementDTO {
	return statementDTO{
		Party: partyDTO{
			ID:        st.Party.ID,
			Document:  st.Party.Document,
			Email:     st.Party.Email,
			FirstName: st.Party.FirstName,
			LastName:  st.Party.LastName,
		},
		Dues:         toObligationDTOs(st.Dues),
		Fines:        toObligationDTOs(st.Fines),
		Reservations: toObligationDTOs(st.Reservations),
		Summary: summaryDTO{
			TotalPending:             st.Summary.TotalPending.StringFixed(2),
			TotalDuesPending:         st.Summary.TotalDuesPending.StringFixed(2),
			TotalFinesPending:        st.Summary.TotalFinesPending.StringFixed(2),
			TotalReservationsPending: st.Summary.TotalReservationsPending.StringFixed(2),
			CountDues:                st.Summary.CountDues,
			CountFines:               st.Summary.CountFines,
			CountReservations:        st.Summary.CountReservations,
		},
	}
}

func (h *Handler) listDebts(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	st, err := h.debts.ListOutstanding(r.Context(), userID)
	if err != nil {
		ErrorFromService(w, err)
		return
	}

	Success(w, "outstanding debts", toStatementDTO(st))
}

// paymentDTO is shared with the payment endpoints.
type paymentDTO struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	ObligationID int64   `json:"obligationId"`
	Amount       string  `json:"amount"`
	Method       string  `json:"method"`
	Confirmation string  `json:"confirmation"`
	Reference    string  `json:"reference"`
	ReceiptURL   *string `json:"receiptUrl,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	return paymentDTO{
		ID:           p.ID,
		Kind:         string(p.Ref.Kind),
		ObligationID: p.Ref.ID,
		Amount:       p.Amount.StringFixed(2),
		Method:       string(p.Method),
		Confirmation: string(p.Confirmation),
		Reference:    p.Reference,
		ReceiptURL:   p.ReceiptURL,
		CreatedAt:    p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// obligationSnapshotDTO is the updated obligation returned with a payment.
type obligationSnapshotDTO struct {
	ID     int64  `json:"id"`
	Kind   string `json:"kind"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
	State  string `json:"state"`
}

func toObligationSnapshotDTO(o *domain.Obligation) obligationSnapshotDTO {
	return obligationSnapshotDTO{
		ID:     o.ID,
		Kind:   string(o.Kind),
		Label:  o.Label,
		Amount: o.Total.StringFixed(2),
		State:  string(o.State),
	}
}
