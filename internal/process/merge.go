package process

import "kpi-backend/internal/models"

// MergeUserInfo sets names and business units on rows by user. When a user
// appears several times the last entry wins.
func MergeUserInfo(users []models.UserInfo, rows []models.MetricRow) []models.MetricRow {
	byUser := make(map[string]models.UserInfo, len(users))
	for _, user := range users {
		byUser[user.User] = user
	}

	for i := range rows {
		info, ok := byUser[rows[i].User]
		if !ok {
			rows[i].FirstName, rows[i].LastName, rows[i].BusinessUnit = "", "", ""
			continue
		}
		rows[i].FirstName = info.FirstName
		rows[i].LastName = info.LastName
		rows[i].BusinessUnit = info.BusinessUnit
	}
	return rows
}

func Concat(sets ...[]models.MetricRow) []models.MetricRow {
	total := 0
	for _, set := range sets {
		total += len(set)
	}
	result := make([]models.MetricRow, 0, total)
	for _, set := range sets {
		result = append(result, set...)
	}
	return result
}
