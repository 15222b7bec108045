package database

// SystemDDL creates the organization directory in the system database.
var SystemDDL = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		subdomain VARCHAR(63) NOT NULL,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_organizations_subdomain (subdomain)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// auditColumns is appended to every tenant entity table.
const auditColumns = `
		created_by BIGINT UNSIGNED NOT NULL DEFAULT 0,
		updated_by BIGINT UNSIGNED NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL`

// TenantDDL creates the tables of one clinic's database.  Statements are
// idempotent so Migrate can be re-run against existing tenants.
var TenantDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,` + auditColumns + `,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		KEY ix_refresh_tokens_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS patients (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		first_name VARCHAR(100) NOT NULL,
		last_name VARCHAR(100) NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(32) NOT NULL DEFAULT '',
		gender VARCHAR(16) NOT NULL DEFAULT '',
		birth_date DATETIME NULL,
		notes TEXT NOT NULL,` + auditColumns + `,
		KEY ix_patients_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS doctors (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		first_name VARCHAR(100) NOT NULL,
		last_name VARCHAR(100) NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(32) NOT NULL DEFAULT '',
		specialty VARCHAR(100) NOT NULL DEFAULT '',
		is_active TINYINT(1) NOT NULL DEFAULT 1,` + auditColumns + `
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS services (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		duration_min INT NOT NULL DEFAULT 30,
		price_cents BIGINT NOT NULL DEFAULT 0,
		is_active TINYINT(1) NOT NULL DEFAULT 1,` + auditColumns + `
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS drugs (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		form VARCHAR(64) NOT NULL DEFAULT '',
		strength VARCHAR(64) NOT NULL DEFAULT '',
		manufacturer VARCHAR(255) NOT NULL DEFAULT '',
		stock INT NOT NULL DEFAULT 0,
		price_cents BIGINT NOT NULL DEFAULT 0,` + auditColumns + `
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS slots (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		doctor_id BIGINT UNSIGNED NOT NULL,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		is_booked TINYINT(1) NOT NULL DEFAULT 0,` + auditColumns + `,
		KEY ix_slots_doctor (doctor_id, starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		patient_id BIGINT UNSIGNED NOT NULL,
		doctor_id BIGINT UNSIGNED NOT NULL,
		slot_id BIGINT UNSIGNED NOT NULL,
		service_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL,
		reason VARCHAR(255) NOT NULL DEFAULT '',
		notes TEXT NOT NULL,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,` + auditColumns + `,
		KEY ix_appointments_patient (patient_id),
		KEY ix_appointments_doctor (doctor_id, starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
