package metrics

import (
	"fmt"
	"math"
)

// Activity levels accepted from onboarding.
const (
	ActivityMostlyInactive = "mostly_inactive"
	ActivitySomewhatActive = "somewhat_active"
	ActivityActive         = "active"
	ActivityVeryActive     = "very_active"
)

var activityMultipliers = map[string]float64{
	ActivityMostlyInactive: 1.2,
	ActivitySomewhatActive: 1.375,
	ActivityActive:         1.55,
	ActivityVeryActive:     1.725,
}

// Protein grams per kg of body weight, banded by age then activity.
var proteinMultipliers = map[string]map[string]float64{
	"under_30": {
		ActivityMostlyInactive: 0.8,
		ActivitySomewhatActive: 1.2,
		ActivityActive:         1.6,
		ActivityVeryActive:     2.0,
	},
	"age_30_to_50": {
		ActivityMostlyInactive: 0.8,
		ActivitySomewhatActive: 1.1,
		ActivityActive:         1.4,
		ActivityVeryActive:     1.8,
	},
	"over_50": {
		ActivityMostlyInactive: 1.0,
		ActivitySomewhatActive: 1.3,
		ActivityActive:         1.6,
		ActivityVeryActive:     1.8,
	},
}

// MacroSplit is the daily macro breakdown, grams formatted with units for
// storage/display plus the percentage split of total calories.
type MacroSplit struct {
	Protein     string           `json:"protein"`
	Carbs       string           `json:"carbs"`
	Fat         string           `json:"fat"`
	Percentages MacroPercentages `json:"percentages"`
}

type MacroPercentages struct {
	Protein int `json:"protein"`
	Carbs   int `json:"carbs"`
	Fat     int `json:"fat"`
}

// CalculateBMI returns weight(kg) / height(m)^2 rounded to one decimal.
func CalculateBMI(weightKg, heightCm float64) float64 {
	heightM := heightCm / 100
	bmi := weightKg / (heightM * heightM)
	return math.Round(bmi*10) / 10
}

// TargetWeight is the weight at BMI 22.5 for the given height, in whole kg.
func TargetWeight(heightCm float64) int {
	heightM := heightCm / 100
	return int(math.Round(22.5 * heightM * heightM))
}

// CalculateCaloriesIntake computes the daily calorie budget: Mifflin-St Jeor
// BMR, scaled by activity, then shifted 300 kcal toward the target weight.
func CalculateCaloriesIntake(weightKg, heightCm float64, gender string, activityLevel string, age int) (int, error) {
	multiplier, ok := activityMultipliers[activityLevel]
	if !ok {
		return 0, fmt.Errorf("unknown activity level: %q", activityLevel)
	}

	var bmr float64
	if gender == "male" {
		bmr = 10*weightKg + 6.25*heightCm - 5*float64(age) + 5
	} else {
		bmr = 10*weightKg + 6.25*heightCm - 5*float64(age) - 161
	}

	tdee := bmr * multiplier

	target := TargetWeight(heightCm)
	switch {
	case weightKg > float64(target):
		tdee -= 300 // moderate deficit
	case weightKg < float64(target):
		tdee += 300 // moderate surplus
	}

	return int(math.Round(tdee)), nil
}

// CalculateMacros splits the daily calories: protein from the age/activity
// table (4 kcal/g), then fat takes 30% of the remainder (25% over age 50,
// 9 kcal/g) and carbs the rest (4 kcal/g).
func CalculateMacros(dailyCalories int, bodyWeightKg float64, age int, activityLevel string) (MacroSplit, error) {
	ageGroup := "under_30"
	if age >= 30 && age < 51 {
		ageGroup = "age_30_to_50"
	} else if age >= 51 {
		ageGroup = "over_50"
	}

	multiplier, ok := proteinMultipliers[ageGroup][activityLevel]
	if !ok {
		return MacroSplit{}, fmt.Errorf("unknown activity level: %q", activityLevel)
	}

	proteinGrams := int(math.Round(multiplier * bodyWeightKg))
	proteinCalories := proteinGrams * 4

	remainingCalories := dailyCalories - proteinCalories

	fatRatio := 0.3
	if age > 50 {
		fatRatio = 0.25
	}

	fatCalories := int(math.Round(float64(remainingCalories) * fatRatio))
	fatGrams := int(math.Round(float64(fatCalories) / 9))

	carbCalories := int(math.Round(float64(remainingCalories) * (1 - fatRatio)))
	carbGrams := int(math.Round(float64(carbCalories) / 4))

	proteinPct := int(math.Round(float64(proteinCalories) / float64(dailyCalories) * 100))
	fatPct := int(math.Round(float64(fatCalories) / float64(dailyCalories) * 100))

	return MacroSplit{
		Protein: fmt.Sprintf("%dg", proteinGrams),
		Carbs:   fmt.Sprintf("%dg", carbGrams),
		Fat:     fmt.Sprintf("%dg", fatGrams),
		Percentages: MacroPercentages{
			Protein: proteinPct,
			Fat:     fatPct,
			Carbs:   100 - proteinPct - fatPct,
		},
	}, nil
}

// HeightToCm converts feet+inches to centimeters.
func HeightToCm(feet, inches float64) float64 {
	return feet*30.48 + inches*2.54
}
