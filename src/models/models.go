package models

import (
	"time"

	"gorm.io/datatypes"
)

// 用户（由上游完成认证，这里只保存档案）
type User struct {
	ID          uint   `gorm:"primaryKey"`
	PublicID    string `gorm:"uniqueIndex;not null"`
	PhoneNumber string `gorm:"uniqueIndex;not null"`
	Name        string
	Metric      HealthMetric
	Meals       []MealRecord
}

// 用户健康指标（一对一）
type HealthMetric struct {
	ID             uint `gorm:"primaryKey"`
	UserID         uint `gorm:"uniqueIndex"`
	Gender         string
	Age            int
	Weight         float64 // kg
	Height         string  // 展示用，如 5'11"
	HeightCm       float64
	ActivityLevel  string
	BMI            float64
	CaloriesIntake int
	TargetWeight   int
	Macros         datatypes.JSON // {"protein":"...g","carbs":"...g","fat":"...g","percentages":{...}}
	UpdatedAt      time.Time
}

// 一次成功的餐食分析记录
type MealRecord struct {
	ID        uint   `gorm:"primaryKey"`
	PublicID  string `gorm:"uniqueIndex;not null"`
	UserID    uint   `gorm:"index"`
	Facts     datatypes.JSON // 10项营养数组，原样保存
	Summary   string         `gorm:"type:text"`
	CreatedAt time.Time
}
