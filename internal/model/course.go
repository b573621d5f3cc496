package model

// Course 与 CourseEnrollment 属于课程管理模块，此处仅用于按课程统计成绩
type Course struct {
	BaseModel
	Title string `gorm:"size:255;not null" json:"title"`
}

func (Course) TableName() string {
	return "courses"
}

type CourseEnrollment struct {
	BaseModel
	UserID    uint    `gorm:"uniqueIndex:idx_enrollment_user_course;not null" json:"userId"`
	CourseID  uint    `gorm:"uniqueIndex:idx_enrollment_user_course;not null" json:"courseId"`
	Course    *Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Completed bool    `gorm:"default:false" json:"completed"`
}

func (CourseEnrollment) TableName() string {
	return "course_enrollments"
}
