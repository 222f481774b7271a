package analyzer

type condition struct {
	label           string
	description     string
	recommendations []string
	confidence      float64
}

var conditions = []condition{
	{
		label:       "Укус слепня",
		description: "В большинстве случаев укус слепня для человека неприятен, но не опасен. Однако при склонности к аллергии или множественных укусах нужно обязательно обратиться к врачу.",
		recommendations: []string{
			"Промойте место укуса холодной водой",
			"Приложите лед для уменьшения отека",
			"Используйте антигистаминные препараты при аллергии",
			"Обратитесь к врачу при сильной реакции",
		},
		confidence: 0.85,
	},
	{
		label:       "Укус комара",
		description: "Укусы комаров обычно безвредны, но могут вызывать зуд и небольшой отек. В редких случаях могут передавать инфекции.",
		recommendations: []string{
			"Не расчесывайте место укуса",
			"Приложите холодный компресс",
			"Используйте средства от зуда",
			"При множественных укусах обратитесь к врачу",
		},
		confidence: 0.92,
	},
	{
		label:       "Химический ожог",
		description: "Химический ожог требует немедленного внимания. Степень серьезности зависит от типа химического вещества и времени воздействия.",
		recommendations: []string{
			"Немедленно промойте пораженную область большим количеством воды",
			"Снимите загрязненную одежду",
			"Не используйте мази или домашние средства",
			"Обратитесь за медицинской помощью",
		},
		confidence: 0.78,
	},
	{
		label:       "Солнечный ожог",
		description: "Солнечный ожог возникает при чрезмерном воздействии ультрафиолетовых лучей. Может варьироваться от легкого покраснения до серьезных повреждений кожи.",
		recommendations: []string{
			"Приложите холодные компрессы к пораженной области",
			"Пейте много воды для предотвращения обезвоживания",
			"Используйте увлажняющие средства с алоэ вера",
			"При серьезных ожогах обратитесь к врачу",
		},
		confidence: 0.88,
	},
	{
		label:       "Аллергическая реакция",
		description: "Аллергическая реакция на коже может проявляться в виде сыпи, покраснения, зуда или отека. Может быть вызвана различными аллергенами.",
		recommendations: []string{
			"Определите и избегайте аллерген",
			"Примите антигистаминные препараты",
			"Используйте холодные компрессы для облегчения зуда",
			"При серьезных реакциях немедленно обратитесь к врачу",
		},
		confidence: 0.82,
	},
	{
		label:       "Царапина или порез",
		description: "Небольшие царапины и порезы обычно заживают самостоятельно при правильном уходе. Важно предотвратить инфекцию.",
		recommendations: []string{
			"Очистите рану мягким мылом и водой",
			"Нанесите антисептик",
			"Закройте рану стерильной повязкой",
			"Следите за признаками инфекции",
		},
		confidence: 0.95,
	},
}

// Labels возвращает список состояний, которые умеет распознавать заглушка.
func Labels() []string {
	out := make([]string, len(conditions))
	for i, c := range conditions {
		out[i] = c.label
	}
	return out
}
