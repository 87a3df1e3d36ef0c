package trivia

// Clone returns a deep copy of the team.
func (t Team) Clone() Team {
	out := t
	out.Players = append([]Player(nil), t.Players...)
	out.SelectedCategories = append([]string(nil), t.SelectedCategories...)
	out.PowerUps = append([]PowerUp(nil), t.PowerUps...)
	return out
}

// Clone returns a deep copy of the match. The store hands out clones so
// readers can never mutate the mirror.
func (m Match) Clone() Match {
	out := m
	out.Teams.A = m.Teams.A.Clone()
	out.Teams.B = m.Teams.B.Clone()
	out.Categories = append([]Category(nil), m.Categories...)
	if m.CurrentQuestion != nil {
		q := *m.CurrentQuestion
		q.Options = append([]string(nil), m.CurrentQuestion.Options...)
		out.CurrentQuestion = &q
	}
	if m.CurrentCategory != nil {
		c := *m.CurrentCategory
		out.CurrentCategory = &c
	}
	if m.StartedAt != nil {
		t := *m.StartedAt
		out.StartedAt = &t
	}
	if m.EndedAt != nil {
		t := *m.EndedAt
		out.EndedAt = &t
	}
	return out
}
