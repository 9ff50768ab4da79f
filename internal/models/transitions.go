package models

type BookingEvent string

const (
	BookingEventPaymentReceived   BookingEvent = "payment_received"
	BookingEventCancel            BookingEvent = "cancel"
	BookingEventRequestAcceptance BookingEvent = "request_acceptance"
	BookingEventAccept            BookingEvent = "accept"
	BookingEventDecline           BookingEvent = "decline"
	BookingEventStart             BookingEvent = "start"
	BookingEventComplete          BookingEvent = "complete"
)

type bookingEdge struct {
	From BookingStatus
	To   BookingStatus
}

// BookingTransitions is the complete booking state machine.
var BookingTransitions = map[BookingEvent][]bookingEdge{
	BookingEventPaymentReceived:   {{BookingPendingPayment, BookingConfirmed}},
	BookingEventCancel:            {{BookingPendingPayment, BookingCancelled}},
	BookingEventRequestAcceptance: {{BookingConfirmed, BookingPendingAcceptance}},
	BookingEventAccept:            {{BookingPendingAcceptance, BookingConfirmed}},
	BookingEventDecline:           {{BookingPendingAcceptance, BookingDeclined}},
	BookingEventStart:             {{BookingConfirmed, BookingInProgress}},
	BookingEventComplete:          {{BookingInProgress, BookingCompleted}},
}

// NextBookingStatus returns the state ev leads to from from, if the edge exists.
func NextBookingStatus(from BookingStatus, ev BookingEvent) (BookingStatus, bool) {
	for _, e := range BookingTransitions[ev] {
		if e.From == from {
			return e.To, true
		}
	}
	return "", false
}

// BookingSources lists the states ev may fire from. Used as the guard of conditional updates.
func BookingSources(ev BookingEvent) []BookingStatus {
	edges := BookingTransitions[ev]
	out := make([]BookingStatus, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.From)
	}
	return out
}

// BookingTarget returns the single destination of ev.
func BookingTarget(ev BookingEvent) BookingStatus {
	edges := BookingTransitions[ev]
	if len(edges) == 0 {
		return ""
	}
	return edges[0].To
}

type ApplicationEvent string

const (
	ApplicationEventOpen              ApplicationEvent = "open"
	ApplicationEventDocumentsComplete ApplicationEvent = "documents_complete"
	ApplicationEventStartCheck        ApplicationEvent = "start_check"
	ApplicationEventCheckClear        ApplicationEvent = "check_clear"
	ApplicationEventCheckConsider     ApplicationEvent = "check_consider"
	ApplicationEventSuspend           ApplicationEvent = "suspend"
)

type applicationEdge struct {
	From ApplicationStatus
	To   ApplicationStatus
}

var ApplicationTransitions = map[ApplicationEvent][]applicationEdge{
	ApplicationEventOpen:              {{ApplicationPending, ApplicationDocumentsRequired}},
	ApplicationEventDocumentsComplete: {{ApplicationDocumentsRequired, ApplicationDocumentsSubmitted}},
	ApplicationEventStartCheck:        {{ApplicationDocumentsSubmitted, ApplicationBackgroundCheck}},
	ApplicationEventCheckClear:        {{ApplicationBackgroundCheck, ApplicationApproved}},
	ApplicationEventCheckConsider:     {{ApplicationBackgroundCheck, ApplicationRejected}},
	ApplicationEventSuspend:           {{ApplicationApproved, ApplicationSuspended}},
}

func NextApplicationStatus(from ApplicationStatus, ev ApplicationEvent) (ApplicationStatus, bool) {
	for _, e := range ApplicationTransitions[ev] {
		if e.From == from {
			return e.To, true
		}
	}
	return "", false
}

func ApplicationSources(ev ApplicationEvent) []ApplicationStatus {
	edges := ApplicationTransitions[ev]
	out := make([]ApplicationStatus, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.From)
	}
	return out
}

func ApplicationTarget(ev ApplicationEvent) ApplicationStatus {
	edges := ApplicationTransitions[ev]
	if len(edges) == 0 {
		return ""
	}
	return edges[0].To
}
