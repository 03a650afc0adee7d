package device

// TankDrive maps stick y axes straight onto the motors. The right command is
// negated to account for the mirrored right motor.
func (r *Robot) TankDrive(leftY, rightY float64) error {
	if err := r.SetValue(LeftMotor, DutyCycle, clampDuty(leftY)); err != nil {
		return err
	}
	return r.SetValue(RightMotor, DutyCycle, clampDuty(-rightY))
}

// ArcadeDrive mixes a turn axis and a forward axis into motor commands.
// Both axes are squared (sign kept) for finer control near center.
func (r *Robot) ArcadeDrive(turn, forward float64) error {
	turn *= abs(turn)
	forward = -forward
	forward *= abs(forward)
	if err := r.SetValue(LeftMotor, DutyCycle, clampDuty(-(forward + turn))); err != nil {
		return err
	}
	return r.SetValue(RightMotor, DutyCycle, clampDuty(forward-turn))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
