package roles

// Permission is a named capability checked by dashboard features.
type Permission string

const (
	// patient
	PermViewAppointments   Permission = "view_appointments"
	PermBookAppointments   Permission = "book_appointments"
	PermViewPrescriptions  Permission = "view_prescriptions"
	PermViewLabResults     Permission = "view_lab_results"
	PermViewMedicalRecords Permission = "view_medical_records"
	PermChatWithDoctor     Permission = "chat_with_doctor"

	// doctor
	PermViewPatients         Permission = "view_patients"
	PermCreatePrescriptions  Permission = "create_prescriptions"
	PermManageAppointments   Permission = "manage_appointments"
	PermCreateMedicalRecords Permission = "create_medical_records"
	PermChatWithPatients     Permission = "chat_with_patients"

	// pharmacist
	PermDispenseMedications Permission = "dispense_medications"
	PermManageInventory     Permission = "manage_inventory"
	PermViewPharmacyOrders  Permission = "view_pharmacy_orders"

	// lab technician
	PermViewLabTests      Permission = "view_lab_tests"
	PermCreateLabResults  Permission = "create_lab_results"
	PermManageLabSamples  Permission = "manage_lab_samples"
	PermViewLabQueue      Permission = "view_lab_queue"

	// platform administration
	PermManageUsers         Permission = "manage_users"
	PermViewSystemAnalytics Permission = "view_system_analytics"
	PermManageOrganizations Permission = "manage_organizations"
	PermSystemConfiguration Permission = "system_configuration"
	PermFullSystemAccess    Permission = "full_system_access"
	PermManageAdmins        Permission = "manage_admins"
	PermSystemMaintenance   Permission = "system_maintenance"
	PermAuditLogs           Permission = "audit_logs"

	// organization administration
	PermManageHospital         Permission = "manage_hospital"
	PermManageHospitalStaff    Permission = "manage_hospital_staff"
	PermViewHospitalAnalytics  Permission = "view_hospital_analytics"
	PermManageDepartments      Permission = "manage_departments"
	PermManagePharmacy         Permission = "manage_pharmacy"
	PermManagePharmacyStaff    Permission = "manage_pharmacy_staff"
	PermViewPharmacyAnalytics  Permission = "view_pharmacy_analytics"
	PermManageInventoryAdmin   Permission = "manage_inventory_admin"
	PermManageLaboratory       Permission = "manage_laboratory"
	PermManageLabStaff         Permission = "manage_lab_staff"
	PermViewLabAnalytics       Permission = "view_lab_analytics"
	PermManageLabEquipment     Permission = "manage_lab_equipment"
	PermManageInsuranceCompany Permission = "manage_insurance_company"
	PermViewClaims             Permission = "view_claims"
	PermManagePolicies         Permission = "manage_policies"
	PermViewInsuranceAnalytics Permission = "view_insurance_analytics"

	// insurance agent
	PermProcessClaims   Permission = "process_claims"
	PermViewPolicies    Permission = "view_policies"
	PermCustomerSupport Permission = "customer_support"
)

// Permissions returns a copy of the permissions granted to r.
func Permissions(r Role) []Permission {
	src := mustValid(r).permissions
	out := make([]Permission, len(src))
	copy(out, src)
	return out
}

// HasPermission reports whether r holds p, either directly or through
// full_system_access.
func HasPermission(r Role, p Permission) bool {
	for _, have := range mustValid(r).permissions {
		if have == p || have == PermFullSystemAccess {
			return true
		}
	}
	return false
}
