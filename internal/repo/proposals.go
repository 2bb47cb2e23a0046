package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"slotline/internal/domain"
)

const proposalColumns = `id,org_id,space_id,title,description,duration_minutes,video_provider,expires_at,status,created_by,confirmed_slot_id,meeting_id,meeting_url,external_meeting_id,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (domain.Proposal, error) {
	var p domain.Proposal
	var description, videoProvider, expiresAt, confirmedSlot, meetingID, meetingURL, externalID sql.NullString
	var status, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.OrgID, &p.SpaceID, &p.Title, &description, &p.DurationMinutes, &videoProvider, &expiresAt,
		&status, &p.CreatedBy, &confirmedSlot, &meetingID, &meetingURL, &externalID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Status = domain.ProposalStatus(status)
	p.Description = description.String
	p.VideoProvider = videoProvider.String
	p.ConfirmedSlotID = stringPtr(confirmedSlot)
	p.MeetingID = stringPtr(meetingID)
	p.MeetingURL = stringPtr(meetingURL)
	p.ExternalMeetingID = stringPtr(externalID)
	if expiresAt.Valid {
		exp, err := parseTime(expiresAt.String)
		if err != nil {
			return p, err
		}
		p.ExpiresAt = &exp
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return p, err
	}
	return p, nil
}

func (r Repo) InsertProposal(ctx context.Context, tx *sql.Tx, p domain.Proposal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO proposals(`+proposalColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.OrgID, p.SpaceID, p.Title, nullable(p.Description), p.DurationMinutes, nullable(p.VideoProvider),
		nullableTimePtr(p.ExpiresAt), string(p.Status), p.CreatedBy, nullableStringPtr(p.ConfirmedSlotID),
		nullableStringPtr(p.MeetingID), nullableStringPtr(p.MeetingURL), nullableStringPtr(p.ExternalMeetingID),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return err
}

func (r Repo) GetProposal(ctx context.Context, id string) (domain.Proposal, error) {
	return getProposal(ctx, r.DB, id)
}

func (r Repo) GetProposalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Proposal, error) {
	return getProposal(ctx, tx, id)
}

func getProposal(ctx context.Context, q querier, id string) (domain.Proposal, error) {
	return scanProposal(q.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id=?`, id))
}

type ProposalFilters struct {
	SpaceID string
	Status  string
	Limit   int
}

func (r Repo) ListProposals(ctx context.Context, f ProposalFilters) ([]domain.Proposal, error) {
	clauses := []string{"space_id=?"}
	args := []any{f.SpaceID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ConfirmProposal flips an open proposal to confirmed. The update is
// conditioned on the stored status still being open; it reports false when
// another writer got there first.
func (r Repo) ConfirmProposal(ctx context.Context, tx *sql.Tx, id, slotID, meetingID string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET status=?, confirmed_slot_id=?, meeting_id=?, updated_at=? WHERE id=? AND status=?`,
		string(domain.StatusConfirmed), slotID, meetingID, formatTime(now), id, string(domain.StatusOpen))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CancelProposal flips an open proposal to cancelled under the same
// condition as ConfirmProposal.
func (r Repo) CancelProposal(ctx context.Context, tx *sql.Tx, id string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(domain.StatusCancelled), formatTime(now), id, string(domain.StatusOpen))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetProposalVideo records a provisioned room on the proposal and its meeting.
func (r Repo) SetProposalVideo(ctx context.Context, tx *sql.Tx, proposalID, meetingID, url, externalID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE proposals SET meeting_url=?, external_meeting_id=?, updated_at=? WHERE id=?`,
		nullable(url), nullable(externalID), formatTime(now), proposalID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE meetings SET meeting_url=?, external_meeting_id=? WHERE id=?`,
		nullable(url), nullable(externalID), meetingID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertSlots(ctx context.Context, tx *sql.Tx, slots []domain.Slot) error {
	for _, s := range slots {
		if _, err := tx.ExecContext(ctx, `INSERT INTO proposal_slots(id,proposal_id,start_at,end_at,sort_order) VALUES (?,?,?,?,?)`,
			s.ID, s.ProposalID, formatTime(s.StartAt), formatTime(s.EndAt), s.SortOrder); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListSlots(ctx context.Context, proposalID string) ([]domain.Slot, error) {
	return listSlots(ctx, r.DB, proposalID)
}

func (r Repo) ListSlotsTx(ctx context.Context, tx *sql.Tx, proposalID string) ([]domain.Slot, error) {
	return listSlots(ctx, tx, proposalID)
}

func listSlots(ctx context.Context, q querier, proposalID string) ([]domain.Slot, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,proposal_id,start_at,end_at,sort_order FROM proposal_slots WHERE proposal_id=? ORDER BY sort_order ASC, start_at ASC`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Slot
	for rows.Next() {
		var s domain.Slot
		var start, end string
		if err := rows.Scan(&s.ID, &s.ProposalID, &start, &end, &s.SortOrder); err != nil {
			return nil, err
		}
		if s.StartAt, err = parseTime(start); err != nil {
			return nil, err
		}
		if s.EndAt, err = parseTime(end); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) InsertRespondents(ctx context.Context, tx *sql.Tx, respondents []domain.Respondent) error {
	for _, rp := range respondents {
		if _, err := tx.ExecContext(ctx, `INSERT INTO proposal_respondents(id,proposal_id,actor_id,side,required) VALUES (?,?,?,?,?)`,
			rp.ID, rp.ProposalID, rp.ActorID, string(rp.Side), rp.Required); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListRespondents(ctx context.Context, proposalID string) ([]domain.Respondent, error) {
	return listRespondents(ctx, r.DB, proposalID)
}

func (r Repo) ListRespondentsTx(ctx context.Context, tx *sql.Tx, proposalID string) ([]domain.Respondent, error) {
	return listRespondents(ctx, tx, proposalID)
}

func listRespondents(ctx context.Context, q querier, proposalID string) ([]domain.Respondent, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,proposal_id,actor_id,side,required FROM proposal_respondents WHERE proposal_id=? ORDER BY rowid ASC`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Respondent
	for rows.Next() {
		var rp domain.Respondent
		var side string
		if err := rows.Scan(&rp.ID, &rp.ProposalID, &rp.ActorID, &side, &rp.Required); err != nil {
			return nil, err
		}
		rp.Side = domain.Side(side)
		res = append(res, rp)
	}
	return res, rows.Err()
}

// GetRespondentByActorTx finds the caller's respondent row on a proposal.
func (r Repo) GetRespondentByActorTx(ctx context.Context, tx *sql.Tx, proposalID, actorID string) (domain.Respondent, error) {
	var rp domain.Respondent
	var side string
	err := tx.QueryRowContext(ctx, `SELECT id,proposal_id,actor_id,side,required FROM proposal_respondents WHERE proposal_id=? AND actor_id=?`, proposalID, actorID).
		Scan(&rp.ID, &rp.ProposalID, &rp.ActorID, &side, &rp.Required)
	if err == sql.ErrNoRows {
		return rp, ErrNotFound
	}
	rp.Side = domain.Side(side)
	return rp, err
}

// UpsertResponses writes each response keyed by (slot, respondent),
// overwriting any earlier answer.
func (r Repo) UpsertResponses(ctx context.Context, tx *sql.Tx, responses []domain.Response) error {
	for _, resp := range responses {
		if _, err := tx.ExecContext(ctx, `INSERT INTO proposal_responses(slot_id,respondent_id,response,responded_at) VALUES (?,?,?,?)
ON CONFLICT(slot_id, respondent_id) DO UPDATE SET response=excluded.response, responded_at=excluded.responded_at`,
			resp.SlotID, resp.RespondentID, string(resp.Value), formatTime(resp.RespondedAt)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListResponses(ctx context.Context, proposalID string) ([]domain.Response, error) {
	return listResponses(ctx, r.DB, proposalID, "")
}

func (r Repo) ListResponsesTx(ctx context.Context, tx *sql.Tx, proposalID string) ([]domain.Response, error) {
	return listResponses(ctx, tx, proposalID, "")
}

// ListSlotResponsesTx returns the responses recorded for one slot.
func (r Repo) ListSlotResponsesTx(ctx context.Context, tx *sql.Tx, proposalID, slotID string) ([]domain.Response, error) {
	return listResponses(ctx, tx, proposalID, slotID)
}

func listResponses(ctx context.Context, q querier, proposalID, slotID string) ([]domain.Response, error) {
	query := `SELECT r.slot_id, r.respondent_id, r.response, r.responded_at
FROM proposal_responses r
JOIN proposal_slots s ON s.id = r.slot_id
WHERE s.proposal_id=?`
	args := []any{proposalID}
	if slotID != "" {
		query += ` AND r.slot_id=?`
		args = append(args, slotID)
	}
	query += ` ORDER BY s.sort_order ASC, r.responded_at ASC`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Response
	for rows.Next() {
		var resp domain.Response
		var value, ts string
		if err := rows.Scan(&resp.SlotID, &resp.RespondentID, &value, &ts); err != nil {
			return nil, err
		}
		resp.Value = domain.ResponseValue(value)
		if resp.RespondedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		res = append(res, resp)
	}
	return res, rows.Err()
}

func (r Repo) InsertMeeting(ctx context.Context, tx *sql.Tx, m domain.Meeting) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO meetings(id,proposal_id,space_id,title,start_at,end_at,meeting_url,external_meeting_id,created_by,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ProposalID, m.SpaceID, m.Title, formatTime(m.StartAt), formatTime(m.EndAt),
		nullableStringPtr(m.MeetingURL), nullableStringPtr(m.ExternalMeetingID), m.CreatedBy, formatTime(m.CreatedAt))
	return err
}

func (r Repo) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	var m domain.Meeting
	var start, end, createdAt string
	var url, externalID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,proposal_id,space_id,title,start_at,end_at,meeting_url,external_meeting_id,created_by,created_at FROM meetings WHERE id=?`, id).
		Scan(&m.ID, &m.ProposalID, &m.SpaceID, &m.Title, &start, &end, &url, &externalID, &m.CreatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.MeetingURL = stringPtr(url)
	m.ExternalMeetingID = stringPtr(externalID)
	if m.StartAt, err = parseTime(start); err != nil {
		return m, err
	}
	if m.EndAt, err = parseTime(end); err != nil {
		return m, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return m, err
	}
	return m, nil
}
