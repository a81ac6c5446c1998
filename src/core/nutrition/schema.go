package nutrition

import "fmt"

// SchemaVersion identifies the prompt contract below. The parser is validated
// against the same vocabulary the prompt advertises, so bump this when either
// side changes.
const SchemaVersion = "v1"

// FactVocabulary is the fixed, ordered set of category labels the extractor
// expects back from the vision model.
var FactVocabulary = []string{
	"calories",
	"protein",
	"carbohydrates",
	"fats",
	"fiber",
	"sugar",
	"vitamins",
	"minerals",
	"diet compatibility",
	"summary",
}

// FactCount is the exact length of a conformant nutrition response.
const FactCount = 10

// InsightCount is the exact length of a conformant meal analysis response:
// improvement suggestion, special considerations, frequency recommendation.
const InsightCount = 3

const nutritionPrompt = `Analyze the food image and return ONLY a JSON array with nutritional values in this exact format:
[
    {"calories": "Total estimated calories (in kcal)"},
    {"protein": "Total estimated protein range (in grams)"},
    {"carbohydrates": "Total estimated carbohydrate range (in grams)"},
    {"fats": "Saturated (in g), Unsaturated (in g), Trans (in g)"},
    {"fiber": "Total estimated fiber range (in grams)"},
    {"sugar": "Total estimated sugar range (in grams)"},
    {"vitamins": "A (in mcg), C (in mg), D (in mcg), E (in mg)"},
    {"minerals": "Calcium (in mg), Phosphorus (in mg), Iron (in mg), Zinc (in mcg), Magnesium (in mg), Sodium (in mg)"},
    {"diet compatibility": "Examples: Vegan, Low-fat, High-protein, etc."},
    {"summary": "Create a detailed 1000-character report summary that includes the food name, its country or region of origin, and a comprehensive breakdown of all key nutritional estimated values (macronutrients, micronutrients, fiber, sugar, etc.) to assist doctors and dieticians in analyzing its health benefits, risks, and relevance for fitness or medical purposes in a clear and professional manner."}
]
Reference Portion Sizes:
- Flatbread/Tortilla: 1 piece (50-70g per piece)
- Cooked Grains (e.g., rice, quinoa): 1 cup (150-200g per cup)
- Cooked Legumes/Soups (e.g., lentils, chickpeas): 1 bowl (150-250g per bowl)
- Roasted/Stir-Fried Vegetables: 1 cup (80-120g per cup)
- Fresh Vegetables (Raw Salad): 1 bowl (100-150g per bowl)
- Fruit: 1 medium-sized piece or 1 cup (100-150g per serving)
- Small Dessert (e.g., pastry, cookie): 1 piece (30-60g per piece)
- Dairy Serving (e.g., milk, yogurt): 1 cup (100-150g per cup)
- Cheese: 1 slice or cube (20-30g per slice)
- Beverage (e.g., tea, juice): 1 cup (200-300g per cup)
- Nuts and Seeds: 1 handful (20-30g per serving)
- Meat/Fish/Poultry: 1 portion (100-150g per serving)
- Egg: 1 large egg (50g per egg)
- Oil/Butter: 1 teaspoon (5g per teaspoon)

Example of Response:
[
    {"calories": "450 kcal"},
    {"protein": "25-30g"},
    {"carbohydrates": "50-60g"},
    {"fats": "Saturated: 8g, Unsaturated: 12g, Trans: 0g"},
    {"fiber": "8-10g"},
    {"sugar": "12-15g"},
    {"vitamins": "A: 600mcg, C: 20mg, D: 2.5mcg, E: 4mg"},
    {"minerals": "Calcium: 300mg, Phosphorus: 400mg, Iron: 5mg, Zinc: 800mcg, Magnesium: 120mg, Sodium: 650mg"},
    {"diet compatibility": "Balanced, Moderate-carb, High-protein"},
    {"summary": "This meal appears to be a grilled chicken breast, brown rice, roasted vegetables, and a small side salad..."}
]
Strict Notes:
- Use standard nutritional averages for calculations
- Always include units for all nutritional values
- Estimates must be realistic and based on visible portion sizes; keep protein, carbohydrate and calorie estimates minimal, like a dietician expert
- Return ONLY the final nutrition JSON array in response
- Keep the array length exactly 10 items
- Use the exact format shown above`

const mealAnalysisPromptFormat = `Expert Dietician Meal Analysis Task
Objective: Provide a structured, concise analysis of a meal summary focusing on three key aspects.
Input Format: Detailed meal description or summary
Output Format: Strictly an array of 3 strings [improvementSuggestion, specialConsiderations, frequencyRecommendation]
Analysis Guidelines:
- Improvement Suggestions: Practical, fitness-friendly nutritional enhancements
- Special Considerations: Highlight allergens, unique health impacts
- Frequency Recommendation: Suggest consumption frequency based on fitness goals
Example Input: "Breakfast of two scrambled eggs, whole wheat toast with avocado spread, and a small orange juice"
Example Output: [
  "Add spinach to eggs for extra nutrients and fiber boost",
  "Contains eggs - potential allergen, high in cholesterol",
  "Safe for weekly consumption, balanced morning meal"
]
Meal Summary to Analyze: %s
Strict Requirements:
- Response MUST be a JSON array with exactly 3 strings
- Each string: 15-18 words max
- Use clear, accessible English
- Focus on realistic, health-conscious insights
- No additional text or explanation beyond the array`

// NutritionPrompt returns the instruction block sent with every food image.
func NutritionPrompt() string {
	return nutritionPrompt
}

// MealAnalysisPrompt returns the text-only prompt for a given meal summary.
func MealAnalysisPrompt(summary string) string {
	return fmt.Sprintf(mealAnalysisPromptFormat, summary)
}
