package entitlement

import "github.com/magabrotheeeer/zdravscan/internal/models"

// Plans возвращает каталог тарифов с ценами в рублях.
func Plans() []models.Plan {
	return []models.Plan{
		{
			Type:        models.TierTrial,
			Name:        "Пробный период",
			Duration:    "7 дней",
			Price:       0,
			Description: "Полный доступ ко всем функциям",
		},
		{
			Type:        models.TierExpress,
			Name:        "Экспресс-проверка",
			Duration:    "1 месяц",
			Price:       229,
			Description: "Подписка на 1 месяц",
		},
		{
			Type:        models.TierQuarter,
			Name:        "Триместр здоровья",
			Duration:    "3 месяца",
			Price:       749,
			Description: "Подписка на 3 месяца",
		},
		{
			Type:        models.TierAnnual,
			Name:        "Годовой иммунитет",
			Duration:    "12 месяцев",
			Price:       2499,
			Description: "Подписка на 12 месяцев",
		},
	}
}
